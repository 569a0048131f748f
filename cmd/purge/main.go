// Command purge erases all of a user's expense and chat data. Administrative
// data-erasure tool; deletions run in batches against the document store.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/surgefin/ai-gateway/internal/domain"
	"github.com/surgefin/ai-gateway/internal/store"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("purge", flag.ContinueOnError)
	fs.SetOutput(stderr)

	email := fs.String("email", "", "User email to purge")
	userID := fs.String("user", "", "User ID to purge (alternative to -email)")
	dbPath := fs.String("db", "", "Path to database file (defaults to DB_PATH)")
	keepChats := fs.Bool("keep-chats", false, "Delete transactions only, keep chat history")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *email == "" && *userID == "" {
		fmt.Fprintln(stdout, "Usage: purge -email <email> | -user <user-id> [-db <db_path>] [-keep-chats]")
		fs.PrintDefaults()
		return fmt.Errorf("missing required flag: email or user")
	}

	_ = godotenv.Load()

	path := *dbPath
	if path == "" {
		path = os.Getenv("DB_PATH")
	}
	if path == "" {
		path = "./data/gateway.db"
	}

	repo, err := store.NewSQLite(path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer repo.Close()

	ctx := context.Background()

	user, err := resolveUser(ctx, repo, *userID, *email)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Purging data for user %s\n", user.UserID)

	txDeleted, err := repo.DeleteUserTransactions(ctx, user.UserID, store.MaxDeleteBatchSize)
	if err != nil {
		return fmt.Errorf("delete transactions: %w", err)
	}
	fmt.Fprintf(stdout, "Deleted %d transaction(s)\n", txDeleted)

	if !*keepChats {
		chatsDeleted, err := repo.DeleteUserChats(ctx, user.UserID, store.MaxDeleteBatchSize)
		if err != nil {
			return fmt.Errorf("delete chat history: %w", err)
		}
		fmt.Fprintf(stdout, "Deleted %d chat exchange(s)\n", chatsDeleted)
	}

	fmt.Fprintln(stdout, "Purge complete")
	return nil
}

func resolveUser(ctx context.Context, repo store.Repository, userID, email string) (*domain.User, error) {
	if userID != "" {
		user, err := repo.GetUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("look up user: %w", err)
		}
		if user == nil {
			// Records may exist for users already removed from the
			// account system; purge them by ID regardless.
			return &domain.User{UserID: userID}, nil
		}
		return user, nil
	}

	user, err := repo.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("look up user by email: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("no user found with email %s", email)
	}
	return user, nil
}
