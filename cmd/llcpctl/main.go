// Command llcpctl drives a single in-process LLCP connection from a script
// of newline-delimited commands, for manual exercising and debugging of
// the engine outside a full link-layer scheduler.
package main

import (
	"bufio"
	"encoding/hex"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bleradio/llcp/pkg/conn"
	"github.com/bleradio/llcp/pkg/llcplog"
	"github.com/bleradio/llcp/pkg/metrics"
	"github.com/bleradio/llcp/pkg/pdu"
	"github.com/bleradio/llcp/testutil"
)

// Version information (set by ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GoVersion = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		return
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "run":
		runFlags := flag.NewFlagSet("run", flag.ExitOnError)
		metricsAddr := runFlags.String("metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :9100)")
		runFlags.Parse(args)
		if runFlags.NArg() < 1 {
			fmt.Println("Usage: llcpctl run [-metrics-addr addr] <script>")
			os.Exit(1)
		}
		runScript(runFlags.Arg(0), *metricsAddr)
	case "debug":
		printDebugInfo()
	case "version":
		printVersion()
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("llcpctl - LLCP engine driver")
	fmt.Println()
	fmt.Println("Usage: llcpctl <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run [-metrics-addr addr] <script>")
	fmt.Println("                    Drive one connection from a command script,")
	fmt.Println("                    optionally serving Prometheus metrics on addr")
	fmt.Println("  debug             Print opcode debug information")
	fmt.Println("  version           Print version information")
	fmt.Println("  help              Show this help")
	fmt.Println()
	fmt.Println("Script lines (one command per line, # comments allowed):")
	fmt.Println("  connect                 move the connection to Idle")
	fmt.Println("  disconnect              drain both lanes")
	fmt.Println("  submit                  submit a local version-exchange request")
	fmt.Println("  tick                    run one engine tick")
	fmt.Println("  rx <hex bytes>          deliver a raw control PDU")
}

func printDebugInfo() {
	fmt.Println("LLCP opcode table:")
	fmt.Printf("  0x%02X  LL_VERSION_IND\n", pdu.OpcodeVersionInd)
}

func printVersion() {
	fmt.Printf("llcpctl version %s\n", Version)
	fmt.Printf("  Build time: %s\n", BuildTime)
	fmt.Printf("  Go version: %s\n", GoVersion)
}

func runScript(path, metricsAddr string) {
	f, err := os.Open(path)
	if err != nil {
		fmt.Printf("Error opening script %s: %v\n", path, err)
		os.Exit(1)
	}
	defer f.Close()

	log := llcplog.Default()

	var rec metrics.Recorder
	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		rec = metrics.New(reg)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				log.Warnf("metrics server stopped: %v", err)
			}
		}()
		log.Debugf("serving Prometheus metrics on %s/metrics", metricsAddr)
	}

	engine := conn.NewEngine(conn.Config{
		ContextPoolSize: 4,
		TxPoolSize:      4,
		NtfPoolSize:     4,
		Identity:        pdu.VersionRecord{VersionNumber: 0x08, CompanyID: 0x00D2, SubVersion: 0x0001},
	}, rec, log)

	radio := testutil.NewFakeRadio()
	host := testutil.NewFakeHost()
	c := engine.InitConn(radio, host)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "connect":
			c.Connect()
			fmt.Println("connected")
		case "disconnect":
			c.Disconnect()
			fmt.Println("disconnected")
		case "submit":
			if c.SubmitVersionExchange() {
				fmt.Println("submitted version exchange")
			} else {
				fmt.Println("submit failed: pool exhausted or disconnected")
			}
		case "tick":
			if err := c.Run(); err != nil {
				fmt.Printf("tick error: %v\n", err)
				continue
			}
			fmt.Println("tick ok")
		case "rx":
			if len(fields) < 2 {
				fmt.Println("rx requires hex bytes")
				continue
			}
			raw, err := hex.DecodeString(fields[1])
			if err != nil {
				fmt.Printf("rx: bad hex: %v\n", err)
				continue
			}
			if err := c.RX(raw); err != nil {
				fmt.Printf("rx error: %v\n", err)
				continue
			}
			fmt.Println("rx ok")
		default:
			fmt.Printf("unknown command: %s\n", fields[0])
		}
	}

	fmt.Printf("radio sent %d PDU(s), host notified %d time(s)\n", radio.Count(), host.Count())
}
