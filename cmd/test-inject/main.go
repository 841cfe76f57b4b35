// Command test-inject delivers sample text the way a finished dictation
// would. Focus a text editor before the countdown finishes.
//
// Usage:
//
//	go run ./cmd/test-inject [--method paste|type|clipboard] [--no-paste]
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/chaz8081/gostt-tray/internal/inject"
)

func main() {
	method := flag.String("method", inject.MethodPaste, "delivery method: paste, type or clipboard")
	noPaste := flag.Bool("no-paste", false, "only copy to the clipboard")
	delay := flag.Duration("paste-delay", 50*time.Millisecond, "pause between clipboard write and paste")
	flag.Parse()

	text := "Hello from gostt-tray!"

	fmt.Printf("Will deliver %q using %q in 3 seconds...\n", text, *method)
	fmt.Println("Focus a text editor now!")

	for i := 3; i > 0; i-- {
		fmt.Printf("%d...\n", i)
		time.Sleep(time.Second)
	}

	inj := inject.NewInjector(*method, *delay)
	if err := inj.Deliver(context.Background(), text, !*noPaste); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	fmt.Println("\nDone!")
}
