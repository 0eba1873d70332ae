package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/armctl/pkg/control"
	"github.com/gwillem/armctl/pkg/motion"
	"github.com/gwillem/armctl/pkg/pwm"
	"github.com/gwillem/armctl/pkg/robot"
)

type RunCommand struct {
	Config string  `short:"c" long:"config" default:"armctl.json" description:"Configuration file"`
	Driver string  `long:"driver" description:"Override the configured driver (pigpio, maestro, feetech, rpio, sim)"`
	Speed  float64 `long:"speed" description:"Initial speed factor"`
	Steps  int     `long:"steps" default:"-1" description:"Fixed preset ramp steps, 0 adapts to distance (default: from config)"`
	DryRun bool    `long:"dry-run" description:"Drive the simulator instead of hardware"`
}

const (
	headerHeight = 2  // title + blank line
	legendHeight = 2  // legend row + blank
	tableHeight  = 10 // joint table
	footerHeight = 7  // log box height
	maxLogs      = 5  // number of log messages to show
	borderSize   = 2  // chart border

	frameInterval = 50 * time.Millisecond

	// Terminals report key presses only, so a jog ends when its key stops
	// repeating. The first press waits out the keyboard's repeat delay.
	jogHold   = 550 * time.Millisecond
	jogRepeat = 120 * time.Millisecond

	submitTimeout = 100 * time.Millisecond
	speedStep     = 0.25
)

// Joint colors in drive order
var jointColors = []string{
	"196", // red
	"208", // orange
	"226", // yellow
	"46",  // green
	"51",  // cyan
	"201", // magenta
}

type jogKey struct {
	joint     robot.JointName
	direction int
}

// Two keys per joint, one row apart: the upper key moves +1.
var jogRows = [2]string{"asdfghjkl", "zxcvbnm,."}

// jogKeyMap assigns key pairs to joints in drive order. Joints past the
// last pair have no keys.
func jogKeyMap(names []robot.JointName) map[string]jogKey {
	keys := make(map[string]jogKey, 2*len(names))
	for i, name := range names {
		if i >= len(jogRows[0]) {
			break
		}
		keys[jogRows[0][i:i+1]] = jogKey{name, +1}
		keys[jogRows[1][i:i+1]] = jogKey{name, -1}
	}
	return keys
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	alertStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// activeJog is a jog whose key is still repeating.
type activeJog struct {
	direction int
	seq       int
}

type runModel struct {
	ctx         context.Context
	ctrl        *control.Controller
	names       []robot.JointName
	presetNames []string
	presets     map[string]robot.Preset
	jogKeys     map[string]jogKey
	chart       *streamlinechart.Model
	width       int
	height      int
	logs        []string
	status      string
	snap        control.Snapshot
	last        []int
	jogs        map[robot.JointName]activeJog
	quitting    bool
}

func (m *runModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// Messages from the controller
type eventMsg struct{ control.Event }
type logMsg string
type frameMsg time.Time
type jogReleaseMsg struct {
	joint robot.JointName
	seq   int
}
type stoppedMsg struct{ err error }

func waitForEvent(ctrl *control.Controller) tea.Cmd {
	return func() tea.Msg {
		return eventMsg{<-ctrl.Events()}
	}
}

func waitForLog(ctrl *control.Controller) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-ctrl.Logs())
	}
}

func nextFrame() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}

func releaseJog(joint robot.JointName, seq int, after time.Duration) tea.Cmd {
	return tea.Tick(after, func(time.Time) tea.Msg {
		return jogReleaseMsg{joint: joint, seq: seq}
	})
}

func (m *runModel) submit(cmd control.Command) {
	ctx, cancel := context.WithTimeout(m.ctx, submitTimeout)
	defer cancel()
	if err := m.ctrl.Submit(ctx, cmd); err != nil {
		m.addLog(fmt.Sprintf("[%s] Dropped command: %v", time.Now().Format("15:04:05"), err))
	}
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *runModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 12 // default size before we know terminal size
	}
	width = m.width - borderSize - 2
	if width < 40 {
		width = 40
	}
	height = m.height - headerHeight - legendHeight - tableHeight - footerHeight - borderSize
	if height < 6 {
		height = 6
	}
	return width, height
}

func (m *runModel) resizeChart() {
	w, h := m.chartSize()
	m.chart.Resize(w, h)
}

func initialRunModel(ctx context.Context, ctrl *control.Controller, reg *robot.Registry, presets map[string]robot.Preset) runModel {
	chart := streamlinechart.New(80, 12,
		streamlinechart.WithYRange(-100, 100),
	)

	names := reg.Names()
	for i, name := range names {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(jointColors[i%len(jointColors)]))
		chart.SetDataSetStyles(string(name), runes.ThinLineStyle, style)
	}

	presetNames := make([]string, 0, len(presets))
	for name := range presets {
		presetNames = append(presetNames, name)
	}
	sort.Strings(presetNames)
	if len(presetNames) > 9 {
		presetNames = presetNames[:9]
	}

	return runModel{
		ctx:         ctx,
		ctrl:        ctrl,
		names:       names,
		presetNames: presetNames,
		presets:     presets,
		jogKeys:     jogKeyMap(names),
		chart:       &chart,
		status:      "Starting...",
		snap:        ctrl.Snapshot(),
		jogs:        make(map[robot.JointName]activeJog),
	}
}

func (m runModel) Init() tea.Cmd {
	return tea.Batch(
		waitForEvent(m.ctrl),
		waitForLog(m.ctrl),
		nextFrame(),
	)
}

func (m runModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeChart()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg.String())

	case jogReleaseMsg:
		if jog, ok := m.jogs[msg.joint]; ok && jog.seq == msg.seq {
			delete(m.jogs, msg.joint)
			m.submit(control.JogEnd{Joint: msg.joint})
		}
		return m, nil

	case frameMsg:
		m.snap = m.ctrl.Snapshot()
		if m.hasMovement() {
			for _, j := range m.snap.Joints {
				m.chart.PushDataSet(string(j.Name), j.Normalized)
			}
			m.chart.DrawAll()
		}
		return m, nextFrame()

	case eventMsg:
		switch e := msg.Event.(type) {
		case control.StatusChanged:
			m.status = e.Text
		case control.JointFaulted:
			m.status = fmt.Sprintf("%s faulted: %s", e.Joint, e.Reason)
		}
		return m, waitForEvent(m.ctrl)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.ctrl)

	case stoppedMsg:
		if msg.err != nil {
			m.addLog(fmt.Sprintf("Controller stopped: %v", msg.err))
		}
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

func (m runModel) handleKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case " ":
		m.jogs = make(map[robot.JointName]activeJog)
		m.submit(control.EmergencyStop{})
		return m, nil
	case "+", "=":
		m.submit(control.SetSpeedFactor{Factor: min(control.MaxSpeedFactor, m.snap.SpeedFactor+speedStep)})
		return m, nil
	case "-":
		m.submit(control.SetSpeedFactor{Factor: max(control.MinSpeedFactor, m.snap.SpeedFactor-speedStep)})
		return m, nil
	case "t":
		m.submit(control.SelfTest{})
		return m, nil
	}

	if len(key) == 1 && key[0] >= '1' && key[0] <= '9' {
		i := int(key[0] - '1')
		if i < len(m.presetNames) {
			name := m.presetNames[i]
			m.submit(control.PresetMove{Name: name, Targets: m.presets[name]})
		}
		return m, nil
	}

	jk, ok := m.jogKeys[key]
	if !ok {
		return m, nil
	}
	jog, running := m.jogs[jk.joint]
	if running && jog.direction == jk.direction {
		// Key repeat: keep the jog alive.
		jog.seq++
		m.jogs[jk.joint] = jog
		return m, releaseJog(jk.joint, jog.seq, jogRepeat)
	}

	jog = activeJog{direction: jk.direction, seq: jog.seq + 1}
	m.jogs[jk.joint] = jog
	m.submit(control.JogStart{Joint: jk.joint, Direction: jk.direction})
	return m, releaseJog(jk.joint, jog.seq, jogHold)
}

// hasMovement checks if any joint position has changed since the last frame
func (m *runModel) hasMovement() bool {
	moved := len(m.last) != len(m.snap.Joints)
	if moved {
		m.last = make([]int, len(m.snap.Joints))
	}
	for i, j := range m.snap.Joints {
		if m.last[i] != j.PulseWidth {
			moved = true
			m.last[i] = j.PulseWidth
		}
	}
	return moved
}

func (m runModel) View() string {
	if m.quitting {
		return "Arm released.\n"
	}

	var sb strings.Builder

	// Header
	sb.WriteString(titleStyle.Render("armctl"))
	sb.WriteString(fmt.Sprintf(" - speed %.2fx", m.snap.SpeedFactor))
	if m.snap.PowerStable {
		sb.WriteString("  " + okStyle.Render("power stable"))
	} else {
		sb.WriteString("  " + alertStyle.Render("power unstable"))
	}
	if m.snap.Stop != control.Running {
		sb.WriteString("  " + alertStyle.Render(strings.ToUpper(m.snap.Stop.String())))
	}
	sb.WriteString("  " + statusStyle.Render(m.status))
	sb.WriteString("\n\n")

	// Chart
	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	// Legend
	sb.WriteString(renderLegend(m.names))
	sb.WriteString("\n")

	sb.WriteString(m.renderJoints())
	sb.WriteString("\n")

	// Log box
	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(max(m.width-4, 20)).
		Foreground(lipgloss.Color("9")) // bright red

	var logLines string
	if len(m.logs) == 0 {
		logLines = statusStyle.Render(m.help())
	} else {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func (m runModel) help() string {
	var presets []string
	for i, name := range m.presetNames {
		presets = append(presets, fmt.Sprintf("%d %s", i+1, name))
	}
	var jogs []string
	for i := range min(len(m.names), len(jogRows[0])) {
		jogs = append(jogs, jogRows[0][i:i+1]+"/"+jogRows[1][i:i+1])
	}
	return strings.Join(jogs, " ") + " jog  " + strings.Join(presets, "  ") +
		"  t self-test  space stop  +/- speed  q quit"
}

func (m runModel) renderJoints() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	nameStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	activeStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Padding(0, 1)
	faultStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(0, 1)

	rows := make([][]string, 0, len(m.snap.Joints))
	modes := make([]motion.Mode, 0, len(m.snap.Joints))
	for _, j := range m.snap.Joints {
		modes = append(modes, j.Mode)
		rows = append(rows, []string{
			string(j.Name),
			fmt.Sprintf("%d", j.Channel),
			fmt.Sprintf("%d", j.PulseWidth),
			fmt.Sprintf("%d", j.Target),
			j.Mode.String(),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(statusStyle).
		Headers("Joint", "Channel", "μs", "Target", "Mode").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			switch col {
			case 0:
				return nameStyle
			case 4:
				if row >= 0 && row < len(modes) {
					switch {
					case modes[row] == motion.Faulted:
						return faultStyle
					case modes[row].Active():
						return activeStyle
					}
				}
				return cellStyle
			default:
				return cellStyle
			}
		})
	return t.Render()
}

func renderLegend(names []robot.JointName) string {
	var items []string
	for i, name := range names {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(jointColors[i%len(jointColors)])).Bold(true)
		item := colorStyle.Render("━━") + " " + string(name)
		items = append(items, item)
	}
	return strings.Join(items, "  ")
}

func (c *RunCommand) loadConfig() (*robot.Config, error) {
	cfg, found, err := robot.LoadConfigOrDefault(c.Config)
	if err != nil {
		return nil, err
	}
	if found {
		fmt.Printf("Loaded configuration from %s\n", c.Config)
	} else {
		fmt.Printf("No configuration at %s, using defaults. Run 'armctl setup' to create one.\n", c.Config)
	}

	if c.Driver != "" {
		cfg.Driver.Kind = c.Driver
	}
	if c.DryRun {
		cfg.Driver.Kind = robot.DriverSim
	}
	if c.Speed != 0 {
		cfg.Tuning.SpeedFactor = c.Speed
	}
	if c.Steps >= 0 {
		cfg.Tuning.RampSteps = c.Steps
	}
	return cfg, nil
}

func (c *RunCommand) Execute(args []string) error {
	cfg, err := c.loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	reg, err := cfg.Validate()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	channels := make([]int, 0, reg.Len())
	for _, j := range reg.Joints() {
		channels = append(channels, j.Channel)
	}
	fmt.Printf("Connecting to %s driver...\n", cfg.Driver.Kind)
	ch, err := pwm.Open(ctx, cfg.Driver, channels)
	if err != nil {
		log.Fatalf("Failed to open driver: %v", err)
	}

	opts := control.DefaultOptions()
	opts.SpeedFactor = cfg.Tuning.SpeedFactor
	opts.RampSteps = cfg.Tuning.RampSteps

	ctrl, err := control.NewController(control.Config{
		Registry: reg,
		Channel:  ch,
		Params:   motion.ParamsFromTuning(cfg.Tuning),
		Options:  opts,
	})
	if err != nil {
		ch.Close()
		log.Fatalf("Failed to create controller: %v", err)
	}
	defer ctrl.Close()

	p := tea.NewProgram(initialRunModel(ctx, ctrl, reg, cfg.Presets), tea.WithAltScreen())

	// Start controller in background
	done := make(chan error, 1)
	go func() {
		err := ctrl.Start(ctx)
		done <- err
		if !errors.Is(err, context.Canceled) {
			p.Send(stoppedMsg{err: err})
		}
	}()

	if _, err := p.Run(); err != nil {
		log.Printf("Error running program: %v", err)
	}

	// Servos are released when the loop exits.
	cancel()
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
