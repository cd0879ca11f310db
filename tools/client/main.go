package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

var (
	broker   = flag.String("broker", "tcp://127.0.0.1:1883", "sol-broker address")
	clientID = flag.String("client", "sol-client", "Client ID")
	username = flag.String("user", "", "Username for authentication")
	password = flag.String("pass", "", "Password for authentication")
	qos      = flag.Int("qos", 0, "Default Quality of Service (0, 1, 2)")
)

// statsTopics is the nine per-statistic $SOL/broker/... topics the broker
// publishes on every stats_pub_interval tick. The broker also publishes
// on "$SOL/", "$SOL/broker/", "$SOL/broker/clients/", "$SOL/broker/bytes/"
// and "$SOL/broker/messages/", which are not listed here.
var statsTopics = []string{
	"$SOL/broker/clients/connected/",
	"$SOL/broker/clients/disconnected/",
	"$SOL/broker/bytes/sent/",
	"$SOL/broker/bytes/received/",
	"$SOL/broker/messages/sent/",
	"$SOL/broker/messages/received/",
	"$SOL/broker/uptime/",
	"$SOL/broker/uptime/sol",
	"$SOL/broker/memory/used",
}

// repl is the interactive session: one connected mqtt.Client plus the
// buffered writer its handlers and commands print through.
type repl struct {
	client mqtt.Client
	out    *bufio.Writer
}

func main() {
	flag.Parse()

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	fmt.Fprintln(out, "sol-broker interactive client")
	fmt.Fprintf(out, "broker=%s client=%s qos=%d\n\n", *broker, *clientID, *qos)
	out.Flush()

	client := connect(out)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(out, "\ndisconnecting...")
		out.Flush()
		client.Disconnect(250)
		os.Exit(0)
	}()

	r := &repl{client: client, out: out}
	r.printHelp()
	r.run()
}

// connect builds the paho client options and blocks until the initial
// CONNECT succeeds, exiting the process on failure.
func connect(out *bufio.Writer) mqtt.Client {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(*broker)
	opts.SetClientID(*clientID)
	opts.SetCleanSession(false)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetWriteTimeout(10 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	if *username != "" {
		opts.SetUsername(*username)
	}
	if *password != "" {
		opts.SetPassword(*password)
	}

	opts.SetDefaultPublishHandler(func(_ mqtt.Client, msg mqtt.Message) {
		fmt.Fprintf(out, "\n<- %s (qos %d): %s\n> ", msg.Topic(), msg.Qos(), msg.Payload())
		out.Flush()
	})
	opts.SetOnConnectHandler(func(mqtt.Client) {
		fmt.Fprintln(out, "connected")
		out.Flush()
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		fmt.Fprintf(out, "\nconnection lost: %v (reconnecting...)\n", err)
		out.Flush()
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		fmt.Fprintln(os.Stderr, "connect: timed out")
		os.Exit(1)
	}
	if err := token.Error(); err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}
	return client
}

// run reads one command per line from stdin until EOF or "quit".
func (r *repl) run() {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Fprint(r.out, "> ")
	r.out.Flush()

	for scanner.Scan() {
		fields := strings.Fields(strings.TrimSpace(scanner.Text()))
		if len(fields) > 0 {
			r.dispatch(strings.ToLower(fields[0]), fields[1:])
		}
		fmt.Fprint(r.out, "> ")
		r.out.Flush()
	}
}

func (r *repl) dispatch(cmd string, args []string) {
	switch cmd {
	case "help", "h":
		r.printHelp()
	case "sub", "subscribe":
		r.subscribe(args)
	case "unsub", "unsubscribe":
		r.unsubscribe(args)
	case "pub", "publish":
		r.publish(args)
	case "stats":
		r.subscribeStats()
	case "status", "s":
		r.status()
	case "quit", "exit", "q":
		r.client.Disconnect(250)
		os.Exit(0)
	default:
		fmt.Fprintf(r.out, "unknown command: %s (type 'help')\n", cmd)
	}
}

func (r *repl) subscribe(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(r.out, "usage: sub <topic> [qos]")
		return
	}
	topic := args[0]
	level := byte(*qos)
	if len(args) >= 2 {
		fmt.Sscanf(args[1], "%d", &level)
	}
	token := r.client.Subscribe(topic, level, nil)
	if !token.WaitTimeout(5 * time.Second) {
		fmt.Fprintf(r.out, "subscribe %q: timed out\n", topic)
		return
	}
	if err := token.Error(); err != nil {
		fmt.Fprintf(r.out, "subscribe %q: %v\n", topic, err)
		return
	}
	fmt.Fprintf(r.out, "subscribed to %q (qos %d)\n", topic, level)
}

func (r *repl) unsubscribe(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(r.out, "usage: unsub <topic>")
		return
	}
	topic := args[0]
	token := r.client.Unsubscribe(topic)
	if !token.WaitTimeout(5 * time.Second) {
		fmt.Fprintf(r.out, "unsubscribe %q: timed out\n", topic)
		return
	}
	if err := token.Error(); err != nil {
		fmt.Fprintf(r.out, "unsubscribe %q: %v\n", topic, err)
		return
	}
	fmt.Fprintf(r.out, "unsubscribed from %q\n", topic)
}

// publish sends a message. sol-broker never stores retained messages,
// so there is no retain flag here — only <topic> <message> [qos].
func (r *repl) publish(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(r.out, "usage: pub <topic> <message> [qos]")
		return
	}
	topic := args[0]
	msgParts := args[1:]
	level := byte(*qos)

	if n := len(msgParts); n > 0 {
		if v := msgParts[n-1]; v == "0" || v == "1" || v == "2" {
			fmt.Sscanf(v, "%d", &level)
			msgParts = msgParts[:n-1]
		}
	}
	message := strings.Join(msgParts, " ")

	token := r.client.Publish(topic, level, false, message)
	if !token.WaitTimeout(5 * time.Second) {
		fmt.Fprintf(r.out, "publish %q: timed out\n", topic)
		return
	}
	if err := token.Error(); err != nil {
		fmt.Fprintf(r.out, "publish %q: %v\n", topic, err)
		return
	}
	fmt.Fprintf(r.out, "published to %q (qos %d)\n", topic, level)
}

// subscribeStats subscribes to every topic in statsTopics at once, so
// a user can watch the broker's own stats publisher tick without
// typing out each topic name individually.
func (r *repl) subscribeStats() {
	for _, topic := range statsTopics {
		token := r.client.Subscribe(topic, 0, nil)
		if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
			fmt.Fprintf(r.out, "subscribe %q: %v\n", topic, token.Error())
			continue
		}
	}
	fmt.Fprintf(r.out, "subscribed to %d broker stats topics\n", len(statsTopics))
}

func (r *repl) status() {
	if r.client.IsConnected() {
		fmt.Fprintln(r.out, "status: connected")
	} else {
		fmt.Fprintln(r.out, "status: disconnected")
	}
}

func (r *repl) printHelp() {
	fmt.Fprintln(r.out, "commands:")
	fmt.Fprintln(r.out, "  sub   <topic> [qos]             subscribe to a topic")
	fmt.Fprintln(r.out, "  unsub <topic>                   unsubscribe from a topic")
	fmt.Fprintln(r.out, "  pub   <topic> <message> [qos]    publish a message (no retain flag — sol-broker doesn't persist retained messages)")
	fmt.Fprintln(r.out, "  stats                            subscribe to the nine per-statistic $SOL/broker/... topics")
	fmt.Fprintln(r.out, "  status                           show connection status")
	fmt.Fprintln(r.out, "  help                             show this help")
	fmt.Fprintln(r.out, "  quit                             disconnect and exit")
	fmt.Fprintln(r.out, "\nexamples:")
	fmt.Fprintln(r.out, "  sub sensors/room1/temp 1")
	fmt.Fprintln(r.out, "  pub sensors/room1/temp 25.5 1")
	fmt.Fprintln(r.out, "  stats")
	r.out.Flush()
}
