package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"go.bug.st/serial"

	"github.com/gwillem/armctl/pkg/pwm"
	"github.com/gwillem/armctl/pkg/robot"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type SetupCommand struct {
	Config string `short:"c" long:"config" default:"armctl.json" description:"Configuration file to write"`
}

// GPIO pins for the two joints the rpio driver can run.
var rpioPins = map[robot.JointName]int{
	robot.Base:    12,
	robot.Gripper: 13,
}

func (c *SetupCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("armctl Setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━"))
	fmt.Println()

	if _, err := os.Stat(c.Config); err == nil {
		overwrite := false
		confirm := huh.NewForm(huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("%s exists. Overwrite it?", c.Config)).
				Value(&overwrite),
		))
		if err := confirm.Run(); err != nil || !overwrite {
			fmt.Println("Nothing written.")
			return nil
		}
	}

	cfg := robot.DefaultConfig()
	if err := chooseDriver(&cfg.Driver); err != nil {
		fmt.Println()
		os.Exit(0)
	}
	adaptJoints(cfg)

	if _, err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Generated configuration is invalid: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.SaveTo(c.Config); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println(renderJointTable(cfg.Joints))
	fmt.Println()
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render("Setup complete!"))
	fmt.Printf("Configuration saved to %s\n", c.Config)
	fmt.Println()
	fmt.Println("Start the arm with: " + headerStyle.Render("armctl run"))

	return nil
}

func chooseDriver(d *robot.DriverConfig) error {
	kind := d.Kind
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Which driver generates the servo pulses?").
			Options(
				huh.NewOption("pigpiod daemon (Raspberry Pi)", robot.DriverPigpio),
				huh.NewOption("Pololu Maestro (USB serial)", robot.DriverMaestro),
				huh.NewOption("Feetech bus servos (USB serial)", robot.DriverFeetech),
				huh.NewOption("Raspberry Pi hardware PWM (2 joints)", robot.DriverRPIO),
				huh.NewOption("Simulator", robot.DriverSim),
			).
			Value(&kind),
	))
	if err := form.Run(); err != nil {
		return err
	}
	d.Kind = kind

	switch kind {
	case robot.DriverPigpio:
		addr := d.Address
		if addr == "" {
			addr = pwm.DefaultPigpioAddr
		}
		form = huh.NewForm(huh.NewGroup(
			huh.NewInput().
				Title("pigpiod address").
				Value(&addr),
		))
		if err := form.Run(); err != nil {
			return err
		}
		d.Address = addr

	case robot.DriverMaestro, robot.DriverFeetech:
		ports := serialPorts()
		if len(ports) == 0 {
			return fmt.Errorf("no serial ports found")
		}
		baud := "115200"
		if kind == robot.DriverFeetech {
			baud = "1000000"
		}
		port := ports[0]
		form = huh.NewForm(huh.NewGroup(
			huh.NewSelect[string]().
				Title("Serial port").
				Options(huh.NewOptions(ports...)...).
				Value(&port),
			huh.NewInput().
				Title("Baud rate").
				Value(&baud).
				Validate(func(s string) error {
					_, err := strconv.Atoi(s)
					return err
				}),
		))
		if err := form.Run(); err != nil {
			return err
		}
		d.Port = port
		d.BaudRate, _ = strconv.Atoi(baud)
		d.Address = ""

	default:
		d.Address = ""
	}
	return nil
}

// adaptJoints renumbers the default arm's channels for drivers that do not
// address joints by GPIO pin.
func adaptJoints(cfg *robot.Config) {
	switch cfg.Driver.Kind {
	case robot.DriverMaestro:
		for i := range cfg.Joints {
			cfg.Joints[i].Channel = i
		}
	case robot.DriverFeetech:
		// Servo IDs start at 1.
		for i := range cfg.Joints {
			cfg.Joints[i].Channel = i + 1
		}
	case robot.DriverRPIO:
		var joints []robot.JointConfig
		for _, j := range cfg.Joints {
			if pin, ok := rpioPins[j.Name]; ok {
				j.Channel = pin
				joints = append(joints, j)
			}
		}
		cfg.Joints = joints
		for name, p := range cfg.Presets {
			kept := make(robot.Preset)
			for joint, pw := range p {
				if _, ok := rpioPins[joint]; ok {
					kept[joint] = pw
				}
			}
			cfg.Presets[name] = kept
		}
		fmt.Println(dimStyle.Render("Hardware PWM drives BASE on GPIO12 and GRIPPER on GPIO13 only."))
	}
}

func serialPorts() []string {
	ports, err := serial.GetPortsList()
	if err != nil {
		fmt.Printf("Error listing ports: %v\n", err)
		return nil
	}
	var out []string
	for _, port := range ports {
		// Skip Bluetooth ports on macOS
		if strings.Contains(port, "Bluetooth") {
			continue
		}
		out = append(out, port)
	}
	return out
}

func renderJointTable(joints []robot.JointConfig) string {
	tableHeaderStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	tableJointStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	tableCellStyle := lipgloss.NewStyle().Padding(0, 1)

	rows := make([][]string, 0, len(joints))
	for _, j := range joints {
		gravity := "-"
		if j.Compensated() {
			gravity = fmt.Sprintf("%.1f", j.Gravity.Factor)
		}
		rows = append(rows, []string{
			string(j.Name),
			fmt.Sprintf("%d", j.Channel),
			fmt.Sprintf("%d", j.MinPW),
			fmt.Sprintf("%d", j.MaxPW),
			fmt.Sprintf("%.0f", j.StepSize),
			gravity,
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Joint", "Channel", "Min μs", "Max μs", "Step", "Gravity").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			if col == 0 {
				return tableJointStyle
			}
			return tableCellStyle
		})
	return t.Render()
}
