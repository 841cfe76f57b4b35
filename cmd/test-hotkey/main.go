// Command test-hotkey prints the events of the global hotkey listener.
// Run it, then press Ctrl+Shift+R. Press Ctrl+C to exit.
//
// Usage:
//
//	go run ./cmd/test-hotkey [--mode hold|toggle] [--keys ctrl,shift,r]
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/chaz8081/gostt-tray/internal/hotkey"
)

func main() {
	mode := flag.String("mode", "toggle", "hotkey mode: hold or toggle")
	keyList := flag.String("keys", "ctrl,shift,r", "comma separated key combo")
	flag.Parse()

	keys := strings.Split(*keyList, ",")
	fmt.Printf("Listening for %s in %q mode...\n", strings.Join(keys, "+"), *mode)
	fmt.Println("Press Ctrl+C to exit.")

	listener := hotkey.NewListener(keys, *mode)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		fmt.Println("\nShutting down...")
		listener.Stop()
	}()

	go func() {
		n := 0
		for ev := range listener.Events() {
			n++
			fmt.Printf("#%d %s\n", n, ev.Type)
		}
		fmt.Println("Event channel closed.")
	}()

	// Blocks until stopped
	listener.Start()
	fmt.Println("Done.")
}
