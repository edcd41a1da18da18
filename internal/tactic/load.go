package tactic

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/chesnaught/chesnaught/pkg/common"
)

var errNoBestMoves = errors.New("no best moves")

type EpdItem struct {
	ID        string
	Content   string
	Position  *common.Position
	BestMoves []common.Move
}

func LoadEpdFile(filePath string, logger zerolog.Logger) ([]EpdItem, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return LoadEpd(file, logger)
}

// LoadEpd skips lines that do not parse.
func LoadEpd(r io.Reader, logger zerolog.Logger) ([]EpdItem, error) {
	var result []EpdItem
	var scanner = bufio.NewScanner(r)
	for scanner.Scan() {
		var line = strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var test, err = parseEpdTest(line)
		if err != nil {
			logger.Warn().Err(err).Msg("skip epd line")
			continue
		}
		result = append(result, test)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func parseEpdTest(s string) (EpdItem, error) {
	var fields = strings.Fields(s)
	if len(fields) < 5 {
		return EpdItem{}, fmt.Errorf("parse epd %q: too few fields", s)
	}
	// EPD has no move counters
	var fen = strings.Join(fields[:4], " ") + " 0 1"
	var p, err = common.NewPositionFromFEN(fen)
	if err != nil {
		return EpdItem{}, err
	}

	var result = EpdItem{
		Content:  s,
		Position: p,
	}
	for _, op := range strings.Split(strings.Join(fields[4:], " "), ";") {
		var args = strings.Fields(op)
		if len(args) == 0 {
			continue
		}
		switch args[0] {
		case "bm":
			for _, san := range args[1:] {
				var move, ok = p.ParseMoveSAN(san)
				if !ok {
					return EpdItem{}, fmt.Errorf("parse epd %q: bad move %v", s, san)
				}
				result.BestMoves = append(result.BestMoves, move)
			}
		case "id":
			result.ID = strings.Trim(strings.Join(args[1:], " "), `"`)
		}
	}
	if len(result.BestMoves) == 0 {
		return EpdItem{}, fmt.Errorf("parse epd %q: %w", s, errNoBestMoves)
	}
	return result, nil
}
