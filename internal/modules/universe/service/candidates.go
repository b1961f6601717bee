package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"equity_bot/internal/helper"
	"equity_bot/pkg/logger"
)

// Запасной список малых компаний роста на случай, когда seed-файла нет.
var DefaultCandidates = []string{
	"PLUG", "NVAX", "SOFI", "RUN", "ARRY",
	"BLDP", "ENPH", "SEDG", "BE", "FSLR",
}

const DefaultRussellURL = "https://raw.githubusercontent.com/datasets/russell-2000/master/data/russell-2000.csv"

func RussellPath(dataDir string) string {
	return filepath.Join(dataDir, "universe", "russell_2000.csv")
}

// LoadSeedCandidates собирает стартовый список тикеров из основного
// файла и дополнительных источников; если ни один не дал ни тикера,
// возвращаются DefaultCandidates.
func LoadSeedCandidates(path string, extraSources ...string) []string {
	var symbols []string
	seen := map[string]bool{}
	appendFrom := func(p string) {
		for _, sym := range parseSymbolFile(p) {
			if seen[sym] {
				continue
			}
			seen[sym] = true
			symbols = append(symbols, sym)
		}
	}
	if path != "" {
		appendFrom(path)
	}
	for _, extra := range extraSources {
		appendFrom(extra)
	}
	if len(symbols) == 0 {
		return append([]string(nil), DefaultCandidates...)
	}
	return symbols
}

func LoadRussellCandidates(path string) []string {
	return parseSymbolFile(path)
}

func parseSymbolFile(path string) []string {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	return ParseSymbolList(string(raw))
}

// ParseSymbolList разбирает список тикеров из CSV или плоского текста:
// строки с # пропускаются, заголовок с колонкой symbol распознаётся,
// тикеры нормализуются в верхний регистр, дубли отбрасываются.
func ParseSymbolList(content string) []string {
	var out []string
	seen := map[string]bool{}
	symbolCol := 0
	headerSeen := false
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		cells := strings.Split(line, ",")
		if !headerSeen {
			headerSeen = true
			if col := headerSymbolColumn(cells); col >= 0 {
				symbolCol = col
				continue
			}
		}
		if symbolCol >= len(cells) {
			continue
		}
		sym := helper.NormSymbol(cells[symbolCol])
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	return out
}

func headerSymbolColumn(cells []string) int {
	for i, cell := range cells {
		if strings.EqualFold(strings.TrimSpace(cell), "symbol") {
			return i
		}
	}
	return -1
}

// RefreshRussellFile скачивает список Russell 2000 и пишет его в dest
// одной колонкой symbol. Возвращает число сохранённых тикеров.
func RefreshRussellFile(ctx context.Context, client *http.Client, url, dest string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return 0, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	symbols := ParseSymbolList(string(body))
	if len(symbols) == 0 {
		logger.Warn("russell download returned no symbols")
		return 0, nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, errors.Wrap(err, "create universe dir")
	}
	content := "symbol\n" + strings.Join(symbols, "\n") + "\n"
	if err := os.WriteFile(dest, []byte(content), 0o644); err != nil {
		return 0, errors.Wrap(err, "write russell file")
	}
	logger.Info("saved %d russell symbols to %s", len(symbols), dest)
	return len(symbols), nil
}
