package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/wtask/relay/internal/chat/client"
)

const (
	defaultName = "Anonymous"
	dialTimeout = 5 * time.Second
)

var (
	// BinaryName - name of run application binary
	BinaryName = strings.TrimSuffix(filepath.Base(os.Args[0]), filepath.Ext(os.Args[0]))
)

func main() {
	host := flag.String("host", "localhost", "Chat server host")
	port := flag.Uint("port", 5555, "Chat server port")
	name := flag.String("name", "", "Your name in the chat, asked interactively if empty")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Connect to text chat relay server\n\n\t%s [options]\nOptions:\n\n", BinaryName)
		flag.PrintDefaults()
	}
	flag.Parse()

	input := bufio.NewScanner(os.Stdin)
	if *name == "" {
		*name = askName(input, os.Stdout)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(chat(ctx, net.JoinHostPort(*host, strconv.FormatUint(uint64(*port), 10)), *name, input, os.Stdout))
}

func askName(input *bufio.Scanner, out io.Writer) string {
	fmt.Fprint(out, "Enter your name: ")
	if input.Scan() {
		if name := strings.TrimSpace(input.Text()); name != "" {
			return name
		}
	}
	return defaultName
}

// chat - forwards input lines to the server until input ends, connection is lost or ctx is done.
func chat(ctx context.Context, addr, name string, input *bufio.Scanner, out io.Writer) int {
	console := &console{out: out}
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	c, err := client.Dial(
		dialCtx,
		addr,
		console.message,
		client.WithOnLost(func(error) { console.println("Lost connection to the server!") }),
	)
	if err != nil {
		console.println("Could not connect to server!")
		return 1
	}
	defer c.Close()
	console.println("Connected to the server!")

	lines := make(chan string)
	go func() {
		defer close(lines)
		for input.Scan() {
			lines <- input.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return 0
		case <-c.Done():
			return 1
		case line, ok := <-lines:
			if !ok {
				return 0
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if err := c.SendLine(name + ": " + line); err != nil {
				console.println("Could not send message!")
			}
		}
	}
}

// console - serializes output of receive goroutine and main loop.
type console struct {
	mu  sync.Mutex
	out io.Writer
}

func (c *console) println(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, text)
}

func (c *console) message(text string) {
	c.println("[" + time.Now().Format("15:04") + "] " + text)
}
