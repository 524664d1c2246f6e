package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output.
var printlnFn = fmt.Println

// execIface is the command surface the REPL dispatches to. *App
// implements it; tests use a stub.
type execIface interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Refresh(ctx context.Context) error
	Status(ctx context.Context) error
	History(ctx context.Context, username string) error
	Recheck(ctx context.Context) error
	Login(ctx context.Context, username string) error
	Logout(ctx context.Context) error
	WhoAmI(ctx context.Context) error
	Check(ctx context.Context, username string) error
	Archive(ctx context.Context, dir string) error
}

const helpText = "Available commands: start, stop, refresh, status, history [name], recheck, " +
	"login [name], logout, whoami, check <name>, archive [dir], exit"

// runREPL reads commands from scanner until EOF, "exit" or "quit", or
// until ctx is cancelled. Handler errors are reported by the handlers
// themselves. Each command runs while holding busy, a one-slot semaphore,
// so a caller can wait for the running command before tearing down; a nil
// busy disables this.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner, busy chan struct{}) {
	for {
		if ctx.Err() != nil {
			return
		}
		printlnFn(fmt.Sprintf("gps %s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}

		if busy != nil {
			busy <- struct{}{}
		}
		quit := ctx.Err() != nil || dispatch(ctx, a, parts[0], strings.Join(parts[1:], " "))
		if busy != nil {
			<-busy
		}
		if quit {
			return
		}
	}
}

// dispatch runs one command and reports whether the loop should end.
func dispatch(ctx context.Context, a execIface, cmd, arg string) bool {
	switch cmd {
	case "help":
		printlnFn(helpText)
	case "start":
		_ = a.Start(ctx)
	case "stop":
		_ = a.Stop(ctx)
	case "refresh":
		_ = a.Refresh(ctx)
	case "status":
		_ = a.Status(ctx)
	case "history":
		_ = a.History(ctx, arg)
	case "recheck":
		_ = a.Recheck(ctx)
	case "login":
		_ = a.Login(ctx, arg)
	case "logout":
		_ = a.Logout(ctx)
	case "whoami":
		_ = a.WhoAmI(ctx)
	case "check":
		if arg == "" {
			printlnFn("Usage: check <name>")
			return false
		}
		_ = a.Check(ctx, arg)
	case "archive":
		_ = a.Archive(ctx, arg)
	case "exit", "quit":
		printlnFn("Bye!")
		return true
	default:
		printlnFn("Unknown command:", cmd)
	}
	return false
}
