package viewer

import (
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"
)

const (
	headerHeight = 2 // title + blank line
	legendHeight = 2 // legend row + blank
	footerHeight = 7 // log box height
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
	maxSeries    = 6
)

// One color per plotted state component.
var seriesColors = []string{"196", "208", "226", "46", "51", "201"}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// Frame is one playback step shown on screen.
type Frame struct {
	Episode string
	Step    int
	Total   int
	Values  []float64
}

type frameMsg Frame
type logMsg string

func seriesName(i int) string { return "q" + strconv.Itoa(i) }

type model struct {
	title  string
	series int
	chart  *streamlinechart.Model
	width  int
	height int
	logs   []string
	frame  Frame
	frames <-chan Frame
	logCh  <-chan string
	done   bool
}

func newModel(title string, series int, ymin, ymax float64, frames <-chan Frame, logs <-chan string) model {
	series = min(series, maxSeries)
	chart := streamlinechart.New(80, 20, streamlinechart.WithYRange(ymin, ymax))
	for i := range series {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(seriesColors[i]))
		chart.SetDataSetStyles(seriesName(i), runes.ThinLineStyle, style)
	}
	return model{title: title, series: series, chart: &chart, frames: frames, logCh: logs}
}

func waitForFrame(ch <-chan Frame) tea.Cmd {
	return func() tea.Msg {
		f, ok := <-ch
		if !ok {
			return nil
		}
		return frameMsg(f)
	}
}

func waitForLog(ch <-chan string) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return nil
		}
		return logMsg(s)
	}
}

func (m *model) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

func (m *model) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20
	}
	width = max(m.width-borderSize-2, 40)
	height = max(m.height-headerHeight-legendHeight-footerHeight-borderSize, 10)
	return width, height
}

func (m model) Init() tea.Cmd {
	return tea.Batch(waitForFrame(m.frames), waitForLog(m.logCh))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.chart.Resize(m.chartSize())
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.done = true
			return m, tea.Quit
		}

	case frameMsg:
		m.frame = Frame(msg)
		for i, v := range m.frame.Values {
			if i >= m.series {
				break
			}
			m.chart.PushDataSet(seriesName(i), v)
		}
		m.chart.DrawAll()
		return m, waitForFrame(m.frames)

	case logMsg:
		m.addLog(strings.TrimRight(string(msg), "\n"))
		return m, waitForLog(m.logCh)
	}
	return m, nil
}

func (m model) View() string {
	if m.done {
		return "Playback stopped.\n"
	}
	var sb strings.Builder

	sb.WriteString(titleStyle.Render(m.title))
	if m.frame.Episode != "" {
		sb.WriteString(fmt.Sprintf(" - %s step %d/%d", m.frame.Episode, m.frame.Step+1, m.frame.Total))
	}
	if m.width > 0 {
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  [%dx%d]", m.width, m.height)))
	}
	sb.WriteString("\n\n")

	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")
	sb.WriteString(m.legend())
	sb.WriteString("\n")

	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(max(m.width-4, 20)).
		Foreground(lipgloss.Color("11"))
	logLines := statusStyle.Render("Press 'q' to quit")
	if len(m.logs) > 0 {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")
	return sb.String()
}

func (m model) legend() string {
	items := make([]string, 0, m.series)
	for i := range m.series {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(seriesColors[i])).Bold(true)
		items = append(items, style.Render("━━")+" "+seriesName(i))
	}
	return strings.Join(items, "  ")
}
