package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/matzehuels/morphkit/pkg/format"
	"github.com/matzehuels/morphkit/pkg/source"
)

// List styles
var (
	listSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	listNormalStyle   = lipgloss.NewStyle().Foreground(colorWhite)
	listDimStyle      = lipgloss.NewStyle().Foreground(colorDim)
)

// =============================================================================
// FileListModel - Interactive morphology file selection
// =============================================================================

// FileEntry is one candidate input in the picker.
type FileEntry struct {
	Path    string
	Rel     string
	Format  string
	Size    int64
	ModTime time.Time
}

// FileListModel is the bubbletea model for picking files from a directory.
// Space toggles a file, a marks every file and enter confirms. Enter with
// nothing marked selects the file under the cursor.
type FileListModel struct {
	Files    []FileEntry
	Cursor   int
	Marked   map[int]bool
	Selected []FileEntry
	Height   int
	Offset   int
}

// NewFileListModel creates a new file list model.
func NewFileListModel(files []FileEntry) FileListModel {
	return FileListModel{
		Files:  files,
		Marked: map[int]bool{},
		Height: 15,
	}
}

func (m FileListModel) Init() tea.Cmd {
	return nil
}

func (m FileListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.Selected = nil
			return m, tea.Quit
		case "up", "k":
			if m.Cursor > 0 {
				m.Cursor--
				if m.Cursor < m.Offset {
					m.Offset = m.Cursor
				}
			}
		case "down", "j":
			if m.Cursor < len(m.Files)-1 {
				m.Cursor++
				if m.Cursor >= m.Offset+m.Height {
					m.Offset = m.Cursor - m.Height + 1
				}
			}
		case " ":
			if len(m.Files) > 0 {
				m.Marked[m.Cursor] = !m.Marked[m.Cursor]
			}
		case "a":
			all := len(m.markedIndexes()) == len(m.Files)
			for i := range m.Files {
				m.Marked[i] = !all
			}
		case "enter":
			if len(m.Files) == 0 {
				return m, tea.Quit
			}
			idx := m.markedIndexes()
			if len(idx) == 0 {
				idx = []int{m.Cursor}
			}
			for _, i := range idx {
				m.Selected = append(m.Selected, m.Files[i])
			}
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.Height = max(msg.Height-7, 5)
	}
	return m, nil
}

func (m FileListModel) markedIndexes() []int {
	var out []int
	for i := range m.Files {
		if m.Marked[i] {
			out = append(out, i)
		}
	}
	return out
}

func (m FileListModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Select Morphologies"))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ navigate  ␣ mark  a all  ⏎ convert  q quit"))
	b.WriteString("\n\n")

	end := min(m.Offset+m.Height, len(m.Files))

	rows := [][]string{}
	for i := m.Offset; i < end; i++ {
		f := m.Files[i]
		cursor := "  "
		if i == m.Cursor {
			cursor = "▸ "
		}
		mark := " "
		if m.Marked[i] {
			mark = "●"
		}
		rows = append(rows, []string{cursor, mark, f.Rel, f.Format, formatSize(f.Size), formatRelativeTime(f.ModTime)})
	}

	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("", "", "File", "Format", "Size", "Modified").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			idx := m.Offset + row
			switch {
			case idx == m.Cursor:
				return listSelectedStyle
			case m.Marked[idx]:
				return lipgloss.NewStyle().Foreground(colorGreen)
			case col >= 4:
				return listDimStyle
			}
			return listNormalStyle
		})

	b.WriteString(t.Render())
	b.WriteString("\n\n")
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  [%d/%d]  %d marked", m.Cursor+1, len(m.Files), len(m.markedIndexes()))))

	return b.String()
}

// =============================================================================
// Helpers
// =============================================================================

// listMorphologies returns the supported files below dir.
func listMorphologies(dir string) ([]FileEntry, error) {
	paths, err := source.Walk(dir, supportedFile)
	if err != nil {
		return nil, err
	}
	entries := make([]FileEntry, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			rel = p
		}
		entries = append(entries, FileEntry{
			Path:    p,
			Rel:     rel,
			Format:  format.Ext(p),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return entries, nil
}

// pickFiles lets the user choose among files. It returns nil when the
// picker was cancelled.
func pickFiles(files []FileEntry) ([]FileEntry, error) {
	final, err := tea.NewProgram(NewFileListModel(files)).Run()
	if err != nil {
		return nil, fmt.Errorf("file picker: %w", err)
	}
	return final.(FileListModel).Selected, nil
}

func formatSize(n int64) string {
	switch {
	case n < 1<<10:
		return fmt.Sprintf("%d B", n)
	case n < 1<<20:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	}
}

func formatRelativeTime(t time.Time) string {
	diff := time.Since(t)
	switch {
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	default:
		return t.Format("Jan 2, 2006")
	}
}
