// tourbookctl is the operator tool: it bootstraps admin accounts
// directly against the database, bypassing the public signup route
// which only ever creates regular users.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"github.com/iudanet/tourbook/internal/models"
	"github.com/iudanet/tourbook/internal/server/storage/sqlite"
)

func main() {
	dbPath := flag.String("db", envOr("TOURBOOK_DB", "tourbook.db"), "SQLite database path")
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(2)
	}

	var err error
	switch flag.Arg(0) {
	case "create-admin":
		err = createAdmin(*dbPath)
	default:
		printUsage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func createAdmin(dbPath string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := sqlite.New(ctx, dbPath)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	name, err := readInput("Name: ")
	if err != nil {
		return err
	}
	email, err := readInput("Email: ")
	if err != nil {
		return err
	}
	password, err := readPassword("Password: ")
	if err != nil {
		return err
	}
	confirm, err := readPassword("Confirm password: ")
	if err != nil {
		return err
	}
	if password != confirm {
		return fmt.Errorf("passwords do not match")
	}
	if len(password) < 6 {
		return fmt.Errorf("password must be at least 6 characters long")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		return err
	}

	user := &models.User{
		Name:         name,
		Email:        email,
		Role:         models.RoleAdmin,
		PasswordHash: string(hash),
	}
	if err := sqlite.NewUserRepo(store).Create(ctx, user); err != nil {
		return fmt.Errorf("failed to create admin: %w", err)
	}

	fmt.Printf("Admin account created: %s (%s)\n", user.Email, user.ID)
	return nil
}

// readInput reads a trimmed line from stdin.
func readInput(prompt string) (string, error) {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

// readPassword reads a password without echoing it.
func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(passwordBytes), nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printUsage() {
	fmt.Println("Usage: tourbookctl [flags] <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  create-admin    Create an admin account interactively")
	fmt.Println()
	fmt.Println("Flags:")
	flag.PrintDefaults()
}
