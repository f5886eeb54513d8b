package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/fatih/color"
	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/bigbag/spiprobe/internal/board"
	"github.com/bigbag/spiprobe/internal/console"
	"github.com/bigbag/spiprobe/internal/detect"
	"github.com/bigbag/spiprobe/internal/logging/glogger"
	"github.com/bigbag/spiprobe/internal/serial"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	backendFlag     string
	portFlag        string
	baudFlag        int
	boardFlag       string
	spiFlag         string
	pollLimitFlag   int
	readTimeoutFlag time.Duration
	simImageFlag    string
	simChipFlag     string
	simBusyFlag     int
	waitDSRFlag     bool
)

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	warnColor = color.New(color.FgYellow)
	errColor  = color.New(color.FgRed, color.Bold)
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "spiprobe",
		Short: "Read, erase and program SPI NOR flash chips",
		Long: `spiprobe drives an SPI NOR flash chip through GPIO and SPI lines and
serves the single-character operator console over a serial port or the
local terminal.

The chip is reached through periph.io on a Linux host, or through a
simulated chip for testing without hardware.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return flag.CommandLine.Parse(nil)
		},
	}
	flag.Set("logtostderr", "true")
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&backendFlag, "backend", backendSim, "Hardware backend: sim or periph")
	pf.StringVar(&boardFlag, "board", "", "Board file (YAML pin map) for the periph backend")
	pf.StringVar(&spiFlag, "spi", "", "SPI mode: hw or bitbang (default from board file)")
	pf.IntVar(&pollLimitFlag, "poll-limit", 0, "Bound busy waits to this many status reads (0 waits forever)")
	pf.StringVar(&simImageFlag, "sim-image", "", "Initial contents of the simulated chip")
	pf.StringVar(&simChipFlag, "sim-chip", "", "Simulated part (n25q064a, w25q64fv, mx25l6406e, s25fl128s, sst25vf016b)")
	pf.IntVar(&simBusyFlag, "sim-busy", 1, "Busy status reads after each simulated program or erase")

	// Serve command
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the operator console",
		Long: `Run the operator console on a serial port, or on the local terminal
in raw mode when no port is given. Press h for the command list.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	serveCmd.Flags().StringVarP(&portFlag, "port", "p", "", "Serial port (local terminal if not specified)")
	serveCmd.Flags().IntVarP(&baudFlag, "baud", "b", serial.DefaultBaudRate, "Baud rate")
	serveCmd.Flags().DurationVar(&readTimeoutFlag, "read-timeout", 500*time.Millisecond, "Poll interval while idle at the prompt; reads inside a command always wait (0 blocks)")
	serveCmd.Flags().BoolVar(&waitDSRFlag, "wait-dsr", false, "Wait for the terminal to raise DTR before starting")

	// Info command
	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Show chip info",
		Long:  "Identify the flash chip on the probe and show its id and size.",
		Args:  cobra.NoArgs,
		RunE:  runInfo,
	}

	// Version command
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("spiprobe %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	}

	// List command
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available serial ports",
		RunE:  runList,
	}

	rootCmd.AddCommand(serveCmd, infoCmd, versionCmd, listCmd)

	err := rootCmd.Execute()
	glog.Flush()
	if err != nil {
		os.Exit(1)
	}
}

// consolePort is a console transport that can be closed and flushed.
type consolePort interface {
	console.Port
	io.Closer
	Flush() error
}

func openConsolePort(ctx context.Context) (consolePort, bool, error) {
	if portFlag == "" {
		t, err := serial.OpenTerminal(serial.DefaultTerminal, readTimeoutFlag)
		if err != nil {
			return nil, false, err
		}
		return t, true, nil
	}

	port, err := serial.Open(portFlag, baudFlag, readTimeoutFlag)
	if err != nil {
		return nil, false, err
	}
	warnColor.Fprintf(os.Stderr, "Port: %s @ %d baud\n", port.PortName(), port.BaudRate())
	if waitDSRFlag {
		fmt.Fprintln(os.Stderr, "Waiting for terminal...")
		if err := port.WaitDSR(ctx); err != nil {
			port.Close()
			return nil, false, err
		}
	}
	return port, false, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	b, err := openBoard()
	if err != nil {
		return err
	}
	defer b.Close()
	chip := openChip(b)

	port, local, err := openConsolePort(ctx)
	if err != nil {
		return err
	}
	defer port.Close()

	// discard anything received before the console was up
	if err := port.Flush(); err != nil {
		glog.Warningf("flush failed: %v", err)
	}

	activity := console.Activities{console.NewLED(b.Bits, board.LED)}
	if !local {
		activity = append(activity, newBarActivity(os.Stderr))
		okColor.Fprintf(os.Stderr, "Serving console on %s (%s backend)\n", portFlag, backendFlag)
	}

	c := console.New(port, chip, b.Bits,
		console.WithActivity(activity),
		console.WithLogger(glogger.New("console")),
	)
	if _, err := port.Write([]byte("spi\r\n")); err != nil {
		return err
	}
	glog.Infof("console started on %s", portName(local))

	err = c.Serve(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil {
		glog.Errorf("console stopped: %v", err)
		return err
	}
	if !local {
		okColor.Fprintln(os.Stderr, "Done!")
	}
	return nil
}

func portName(local bool) string {
	if local {
		return serial.DefaultTerminal
	}
	return portFlag
}

func runInfo(cmd *cobra.Command, args []string) error {
	b, err := openBoard()
	if err != nil {
		return err
	}
	defer b.Close()

	result, err := detect.DetectChip(openChip(b), backendFlag)
	if err != nil {
		errColor.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	printChipInfo(result)
	return nil
}

func printChipInfo(r *detect.Result) {
	fmt.Printf("  Backend:  %s\n", r.Backend)
	fmt.Printf("  Vendor:   %s\n", r.Vendor)
	if r.Known() {
		fmt.Printf("  Chip:     %s\n", okColor.Sprint(r.Part))
	} else {
		fmt.Printf("  Chip:     %s\n", warnColor.Sprint(r.Part))
	}
	fmt.Printf("  ID:       %s\n", r.ID.Hex())
	if r.Size != 0 {
		fmt.Printf("  Size:     %d KiB\n", r.Size>>10)
	}
	if r.Preset >= 0 {
		fmt.Printf("  Select:   s%d\n", r.Preset)
	}
}

func runList(cmd *cobra.Command, args []string) error {
	ports, err := serial.ListPortDetails()
	if err != nil {
		// enumeration without USB details
		glog.V(1).Infof("detailed port list failed: %v", err)
		names, err := serial.ListPorts()
		if err != nil {
			return err
		}
		ports = ports[:0]
		for _, n := range names {
			ports = append(ports, serial.PortInfo{Name: n})
		}
	}

	if len(ports) == 0 {
		fmt.Println("No serial ports found")
		return nil
	}

	fmt.Println("Available serial ports:")
	for _, p := range ports {
		if p.USB {
			fmt.Printf("  %s  %s:%s %s %s\n", p.Name, p.VID, p.PID, p.Serial, p.Product)
			continue
		}
		fmt.Printf("  %s\n", p.Name)
	}

	return nil
}
