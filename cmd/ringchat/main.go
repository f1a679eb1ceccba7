package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	ringchat "go-ringchat"

	"github.com/eiannone/keyboard"
	"github.com/spf13/cobra"
)

var (
	nodeID            int
	bindHost          string
	ringPort          int
	clientPort        int
	multicastAddr     string
	configPath        string
	helloInterval     time.Duration
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
	discoverWait      time.Duration
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "ringchat",
		Short: "A self-organizing ring cluster with leader-relayed chat",
		Long: `Ringchat runs peer processes that discover each other over UDP multicast,
form a logical ring ordered by node id, elect a leader with the
Chang-Roberts algorithm, and relay chat messages through the elected
leader to every connected client.`,
	}

	var nodeCmd = &cobra.Command{
		Use:   "node",
		Short: "Run a cluster node",
		RunE:  runNode,
	}
	nodeCmd.Flags().IntVar(&nodeID, "id", 0, "Numeric node id, unique across the cluster (required unless set in --config)")
	nodeCmd.Flags().StringVar(&bindHost, "bind", "", "Bind/advertise address (default: detected from the multicast route)")
	nodeCmd.Flags().IntVar(&ringPort, "ring-port", 0, "Ring listening port (default: ephemeral)")
	nodeCmd.Flags().IntVar(&clientPort, "client-port", 0, "Chat listening port (default: ephemeral)")
	nodeCmd.Flags().StringVar(&multicastAddr, "multicast", "224.1.1.1:50000", "Discovery multicast group as group:port")
	nodeCmd.Flags().DurationVar(&helloInterval, "hello-interval", time.Second, "Discovery beacon interval")
	nodeCmd.Flags().DurationVar(&heartbeatInterval, "heartbeat-interval", 2*time.Second, "Leader heartbeat interval")
	nodeCmd.Flags().DurationVar(&heartbeatTimeout, "heartbeat-timeout", 6*time.Second, "Leader suspicion timeout")
	nodeCmd.Flags().StringVar(&configPath, "config", "", "YAML configuration file")

	var clientCmd = &cobra.Command{
		Use:   "client",
		Short: "Discover the cluster and chat through its leader",
		RunE:  runClient,
	}
	clientCmd.Flags().StringVar(&multicastAddr, "multicast", "224.1.1.1:50000", "Discovery multicast group as group:port")
	clientCmd.Flags().DurationVar(&discoverWait, "wait", 2*time.Second, "How long to listen for node announcements")

	rootCmd.AddCommand(nodeCmd, clientCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runNode(cmd *cobra.Command, args []string) error {
	var (
		ctx  = context.Background()
		opts []ringchat.Option
		id   = nodeID
	)

	if configPath != "" {
		var cfg, err = ringchat.LoadConfig(configPath)
		if err != nil {
			return err
		}
		opts = append(opts, cfg.Options()...)
		if id == 0 {
			id = cfg.NodeID
		}
	}
	if id == 0 {
		return fmt.Errorf("a node id is required (--id or node_id in --config)")
	}

	if cmd.Flags().Changed("bind") {
		opts = append(opts, ringchat.WithBindHost(bindHost))
	}
	if cmd.Flags().Changed("ring-port") {
		opts = append(opts, ringchat.WithRingPort(ringPort))
	}
	if cmd.Flags().Changed("client-port") {
		opts = append(opts, ringchat.WithClientPort(clientPort))
	}
	if cmd.Flags().Changed("multicast") {
		opts = append(opts, ringchat.WithMulticastAddr(multicastAddr))
	}
	if cmd.Flags().Changed("hello-interval") {
		opts = append(opts, ringchat.WithHelloInterval(helloInterval))
	}
	if cmd.Flags().Changed("heartbeat-interval") {
		opts = append(opts, ringchat.WithHeartbeatInterval(heartbeatInterval))
	}
	if cmd.Flags().Changed("heartbeat-timeout") {
		opts = append(opts, ringchat.WithHeartbeatTimeout(heartbeatTimeout))
	}

	// Logs go to stderr so they don't get cleared by status updates
	opts = append(opts, ringchat.WithLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))))

	var node = ringchat.New(id, opts...)
	if err := node.Start(ctx); err != nil {
		return fmt.Errorf("failed to start node: %w", err)
	}

	printStatus(node)

	// Set up periodic status updates
	var ticker = time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	// Set up signal handling; departure is abrupt, neighbors treat it as a
	// failure
	var sigCh = make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	// Initialize keyboard
	if err := keyboard.Open(); err != nil {
		return fmt.Errorf("failed to initialize keyboard: %w", err)
	}
	defer keyboard.Close()

	// Keyboard input channel
	var keyCh = make(chan rune)
	go func() {
		for {
			char, _, err := keyboard.GetKey()
			if err != nil {
				return
			}
			keyCh <- char
		}
	}()

	// Main loop
	for {
		select {
		case <-ticker.C:
			printStatus(node)
		case key := <-keyCh:
			switch key {
			case 'e', 'E':
				fmt.Fprintf(os.Stderr, "\nForcing a new election...\n")
				node.ForceElection()
			case 'c', 'C':
				fmt.Printf("\n\nCrashing immediately (no cleanup)...\n")
				os.Exit(1)
			case 'q', 'Q':
				fmt.Printf("\n\nShutting down...\n")
				return node.Stop()
			}
		case sig := <-sigCh:
			fmt.Printf("\n\nReceived signal %v, exiting...\n", sig)
			return node.Stop()
		}
	}
}

func printStatus(node *ringchat.Node) {
	fmt.Print("\033[2J\033[H") // Clear screen and move cursor to top
	fmt.Println(node.String())

	fmt.Printf("Controls:\n")
	fmt.Printf("  [e] Force a new election\n")
	fmt.Printf("  [c] Crash without cleanup\n")
	fmt.Printf("  [q] Quit\n")
}

func runClient(cmd *cobra.Command, args []string) error {
	var ctx = context.Background()

	fmt.Println("Discovering nodes...")
	var peers, err = ringchat.Discover(ctx, multicastAddr, discoverWait)
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}
	if len(peers) == 0 {
		return fmt.Errorf("no nodes discovered on %s", multicastAddr)
	}

	fmt.Printf("Known nodes:")
	for _, peer := range peers {
		fmt.Printf(" %d", peer.ID)
	}
	fmt.Println()

	client, err := ringchat.DialLeader(peers, 2*time.Second)
	if err != nil {
		return fmt.Errorf("could not reach a leader: %w", err)
	}
	defer client.Close()

	fmt.Printf("Connected to leader %d. Type messages and press Enter.\n", client.Peer.ID)

	// Print broadcasts as they arrive
	var done = make(chan struct{})
	go func() {
		defer close(done)
		for {
			var line, err = client.Recv()
			if err != nil {
				fmt.Println("\n[Disconnected from leader]")
				return
			}
			fmt.Println(line)
		}
	}()

	var scanner = bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		select {
		case <-done:
			return nil
		default:
		}
		if err := client.Send(scanner.Text()); err != nil {
			return err
		}
	}
	return scanner.Err()
}
