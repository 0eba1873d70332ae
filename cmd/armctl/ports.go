package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/hipsterbrown/feetech-servo/feetech"
	"go.bug.st/serial/enumerator"

	"github.com/gwillem/armctl/pkg/pwm"
)

type PortsCommand struct {
	Scan  bool `long:"scan" description:"Scan each port for Feetech servos"`
	Baud  int  `long:"baud" default:"1000000" description:"Baud rate for scanning"`
	MaxID int  `long:"max-id" default:"20" description:"Highest servo ID to scan"`
}

func (c *PortsCommand) Execute(args []string) error {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return fmt.Errorf("list ports: %w", err)
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found.")
		return nil
	}

	rows := make([][]string, 0, len(ports))
	for _, p := range ports {
		// Skip Bluetooth ports on macOS
		if strings.Contains(p.Name, "Bluetooth") {
			continue
		}
		usb := "-"
		if p.IsUSB {
			usb = fmt.Sprintf("%s:%s %s", p.VID, p.PID, p.Product)
		}
		servos := ""
		if c.Scan {
			servos = c.scan(p.Name)
		}
		rows = append(rows, []string{p.Name, usb, servos})
	}

	headers := []string{"Port", "USB", "Servos"}
	if !c.Scan {
		headers = headers[:2]
		for i := range rows {
			rows[i] = rows[i][:2]
		}
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	fmt.Println(t.Render())
	return nil
}

// scan lists the Feetech servo IDs answering on port.
func (c *PortsCommand) scan(port string) string {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	baud := c.Baud
	if baud <= 0 {
		baud = pwm.DefaultFeetechBaud
	}
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: baud,
		Protocol: feetech.ProtocolSTS,
		Timeout:  50 * time.Millisecond,
	})
	if err != nil {
		return dimStyle.Render("cannot open")
	}
	defer bus.Close()

	found, err := bus.Scan(ctx, 1, c.MaxID)
	if err != nil {
		return dimStyle.Render(err.Error())
	}
	if len(found) == 0 {
		return dimStyle.Render("none")
	}
	ids := make([]string, len(found))
	for i, s := range found {
		ids[i] = fmt.Sprintf("%d", s.ID)
	}
	return successStyle.Render(strings.Join(ids, ","))
}
