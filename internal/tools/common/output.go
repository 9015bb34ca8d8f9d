package common

import (
	"encoding/json"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/sandeepkv93/device-auth-service/internal/service"
)

type CIResult struct {
	OK      bool     `json:"ok"`
	Title   string   `json:"title"`
	Details []string `json:"details,omitempty"`
	Error   string   `json:"error,omitempty"`
}

func PrintCIResult(ok bool, title string, details []string, err error) {
	WriteCIResult(os.Stdout, ok, title, details, err)
}

func WriteCIResult(w io.Writer, ok bool, title string, details []string, err error) {
	res := CIResult{OK: ok, Title: title, Details: details}
	if err != nil {
		res.Error = err.Error()
	}
	_ = json.NewEncoder(w).Encode(res)
}

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	activeStyle  = cellStyle.Foreground(lipgloss.Color("42"))
	revokedStyle = cellStyle.Foreground(lipgloss.Color("196"))
	mutedStyle   = cellStyle.Foreground(lipgloss.Color("245"))
)

// RenderSessionsTable renders session views as a bordered terminal table.
// Timestamps are printed in UTC.
func RenderSessionsTable(views []service.SessionView) string {
	rows := make([][]string, 0, len(views))
	for _, v := range views {
		revoked := "-"
		if v.RevokedAt != nil {
			revoked = v.RevokedAt.UTC().Format(time.RFC3339)
		}
		rows = append(rows, []string{
			strconv.FormatUint(uint64(v.ID), 10),
			string(v.State),
			v.CreatedAt.UTC().Format(time.RFC3339),
			v.ExpiresAt.UTC().Format(time.RFC3339),
			revoked,
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers("ID", "STATE", "CREATED", "EXPIRES", "REVOKED").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col != 1 || row < 0 || row >= len(rows) {
				return cellStyle
			}
			switch rows[row][1] {
			case "active":
				return activeStyle
			case "revoked":
				return revokedStyle
			default:
				return mutedStyle
			}
		})
	return t.String()
}
