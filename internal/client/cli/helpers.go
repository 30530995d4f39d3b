package cli

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/iudanet/boardsync/internal/models"
)

// parseFields разбирает аргументы вида key=value в полезную нагрузку операции.
// Числа и true/false сохраняют тип, остальное остается строкой.
func parseFields(args []string) (map[string]any, error) {
	data := make(map[string]any, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid field %q, expected key=value", arg)
		}
		data[key] = parseValue(value)
	}
	return data, nil
}

func parseValue(value string) any {
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return value
}

func parseFloat(name, value string) (float64, error) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be a number", name, value)
	}
	return f, nil
}

// describeObject однострочное описание объекта для list
func describeObject(obj *models.BoardObject) string {
	x, y, w, h := obj.Bounds()
	kind := obj.String("type")
	if kind == "" {
		kind = "-"
	}
	return fmt.Sprintf("%-36s  %-7s  (%g, %g) %gx%g", obj.ID, kind, x, y, w, h)
}

// formatFields печатает поля полезной нагрузки в стабильном порядке
func formatFields(data map[string]any) []string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("  %s: %v", k, data[k]))
	}
	return lines
}

func formatMillis(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Format("2006-01-02 15:04:05")
}
