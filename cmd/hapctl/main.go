package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/matheus3301/haptalk/internal/profile"
	"github.com/matheus3301/haptalk/internal/store"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	dbPath := profile.AppDBPath(profileName)
	if _, err := os.Stat(dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: no database for profile %q: %v\n", profileName, err)
		os.Exit(1)
	}
	db, _, err := store.OpenMigrated(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: open database for profile %q: %v\n", profileName, err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	switch args[0] {
	case "whoami":
		cmdWhoami(db, profileName, *jsonFlag)
	case "history":
		cmdHistory(db, *jsonFlag)
	case "outbox":
		cmdOutbox(db, *jsonFlag)
	case "delete":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: hapctl delete <id>")
			os.Exit(1)
		}
		cmdDelete(db, args[1])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: hapctl [--profile <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  whoami           Show profile and session id")
	fmt.Fprintln(os.Stderr, "  history          List all stored messages")
	fmt.Fprintln(os.Stderr, "  outbox           List PENDING and FAILED messages")
	fmt.Fprintln(os.Stderr, "  delete <id>      Delete a stored message")
}

type whoami struct {
	Profile   string `json:"profile"`
	SessionID string `json:"session_id"`
	Messages  int64  `json:"messages"`
	Database  string `json:"database"`
}

type messageJSON struct {
	ID        int64  `json:"id"`
	SenderID  string `json:"sender_id"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
	Status    string `json:"status"`
	IsMine    bool   `json:"is_mine"`
}

func cmdWhoami(db *store.DB, profileName string, jsonOut bool) {
	id, err := db.SessionID()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	count, err := db.MessageCount()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	resp := whoami{Profile: profileName, SessionID: id, Messages: count, Database: profile.AppDBPath(profileName)}
	if jsonOut {
		outputJSON(resp)
		return
	}
	fmt.Printf("Profile:  %s\n", resp.Profile)
	fmt.Printf("Session:  %s\n", resp.SessionID)
	fmt.Printf("Messages: %d\n", resp.Messages)
	fmt.Printf("Database: %s\n", resp.Database)
}

func cmdHistory(db *store.DB, jsonOut bool) {
	msgs, err := db.ListAll()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	printMessages(msgs, jsonOut, "No messages stored.")
}

func cmdOutbox(db *store.DB, jsonOut bool) {
	pending, err := db.ListByStatus(store.StatusPending)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	failed, err := db.ListByStatus(store.StatusFailed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	printMessages(append(pending, failed...), jsonOut, "Outbox is empty.")
}

func cmdDelete(db *store.DB, arg string) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid id %q\n", arg)
		os.Exit(1)
	}
	if err := db.Delete(id); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Deleted message %d\n", id)
}

func printMessages(msgs []store.Message, jsonOut bool, empty string) {
	if jsonOut {
		out := make([]messageJSON, 0, len(msgs))
		for _, m := range msgs {
			out = append(out, messageJSON{
				ID: m.ID, SenderID: m.SenderID, Text: m.Text,
				Timestamp: m.Timestamp, Status: string(m.Status), IsMine: m.IsMine,
			})
		}
		outputJSON(out)
		return
	}
	if len(msgs) == 0 {
		fmt.Println(empty)
		return
	}
	for _, m := range msgs {
		ts := time.UnixMilli(m.Timestamp).Format("2006-01-02 15:04:05")
		fmt.Printf("%-6d %s %-10s %-8s %s\n", m.ID, ts, m.SenderID, m.Status, m.Text)
	}
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
