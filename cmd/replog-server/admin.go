package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mvarner/replog/internal/api"
	"github.com/mvarner/replog/internal/serverdb"
)

func runAdmin(args []string) {
	if len(args) == 0 {
		printAdminUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "create-user":
		runAdminCreateUser(args[1:])
	case "issue-token":
		runAdminIssueToken(args[1:])
	case "rebuild":
		runAdminRebuild(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown admin command: %s\n", args[0])
		printAdminUsage()
		os.Exit(1)
	}
}

func printAdminUsage() {
	fmt.Fprintln(os.Stderr, `Usage: replog-server admin <command> [flags]

Commands:
  create-user  Create a registered user and print its first token
  issue-token  Mint a fresh token for an existing user
  rebuild      Rebuild the derived projections from the event log`)
}

func openStore(dbPath string) *serverdb.ServerDB {
	if dbPath == "" {
		cfg := api.LoadConfig()
		dbPath = cfg.DBPath
	}
	store, err := serverdb.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: open database: %v\n", err)
		os.Exit(1)
	}
	return store
}

func runAdminCreateUser(args []string) {
	fs := flag.NewFlagSet("admin create-user", flag.ExitOnError)
	email := fs.String("email", "", "user email address")
	dbPath := fs.String("db", "", "path to the server database (default: from REPLOG_DB_PATH)")
	fs.Parse(args)

	if *email == "" {
		fmt.Fprintln(os.Stderr, "error: --email is required")
		fs.Usage()
		os.Exit(1)
	}

	store := openStore(*dbPath)
	defer store.Close()

	ctx := context.Background()
	user, err := store.CreateUser(ctx, *email)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	plaintext, _, err := store.IssueToken(ctx, user.ID, "initial")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("created user %s\n", user.Email)
	fmt.Printf("  user id: %s\n", user.ID)
	fmt.Printf("  token:   %s\n", plaintext)
	fmt.Println("\nSave this token now -- it will not be shown again.")
}

func runAdminIssueToken(args []string) {
	fs := flag.NewFlagSet("admin issue-token", flag.ExitOnError)
	email := fs.String("email", "", "user email address")
	userID := fs.String("user-id", "", "user id (alternative to --email)")
	name := fs.String("name", "cli", "token name")
	dbPath := fs.String("db", "", "path to the server database (default: from REPLOG_DB_PATH)")
	fs.Parse(args)

	if *email == "" && *userID == "" {
		fmt.Fprintln(os.Stderr, "error: --email or --user-id is required")
		fs.Usage()
		os.Exit(1)
	}

	store := openStore(*dbPath)
	defer store.Close()

	ctx := context.Background()
	var (
		user *serverdb.User
		err  error
	)
	if *email != "" {
		user, err = store.GetUserByEmail(ctx, *email)
	} else {
		user, err = store.GetUserByID(ctx, *userID)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if user == nil {
		fmt.Fprintln(os.Stderr, "error: user not found")
		os.Exit(1)
	}

	plaintext, tok, err := store.IssueToken(ctx, user.ID, *name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("issued token for %s\n", user.ID)
	fmt.Printf("  name:  %s\n", tok.Name)
	fmt.Printf("  token: %s\n", plaintext)
	fmt.Println("\nSave this token now -- it will not be shown again.")
}

func runAdminRebuild(args []string) {
	fs := flag.NewFlagSet("admin rebuild", flag.ExitOnError)
	userID := fs.String("user", "", "rebuild only this user (default: everyone)")
	dbPath := fs.String("db", "", "path to the server database (default: from REPLOG_DB_PATH)")
	fs.Parse(args)

	store := openStore(*dbPath)
	defer store.Close()

	stats, err := store.RebuildProjections(context.Background(), *userID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("rebuilt projections: %d events in, %d workouts, %d sets, %d weeks (%d events skipped)\n",
		stats.EventsProcessed, stats.WorkoutsWritten, stats.SetsWritten, stats.WeeksWritten, stats.EventsSkipped)
}
