package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"supportchat/backend/internal/config"
	"supportchat/backend/internal/models"
	"supportchat/backend/internal/presence"
	"supportchat/backend/internal/protocol"
	"supportchat/backend/internal/router"
	"supportchat/backend/internal/session"
	"supportchat/backend/internal/storage"
)

// offline is the notifier of the CLI: nobody is connected to this process.
type offline struct{}

func (offline) Deliver(string, protocol.Event) bool { return false }
func (offline) Broadcast(protocol.Event, string)    {}

const usage = `Usage: admin <command> [args]

Commands:
  seed-owner <username> <password>
  block <user_id> [days] [reason]
  unblock <user_id>
  warn <user_id> [reason]
  users`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	ctx := context.Background()
	backend, err := storage.OpenBackend(cfg)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	store, err := storage.NewStorageService(ctx, backend)
	if err != nil {
		log.Fatalf("failed to load store: %v", err)
	}

	sessions := session.NewManager(store, presence.NewRegistry(store.Users))
	r := router.NewRouter(store, offline{})

	args := os.Args[2:]
	switch os.Args[1] {
	case "seed-owner":
		if len(args) != 2 {
			fmt.Println("Usage: admin seed-owner <username> <password>")
			os.Exit(1)
		}
		created, err := sessions.SeedOwner(ctx, args[0], args[1])
		if err != nil {
			log.Fatalf("Error seeding owner: %v", err)
		}
		if created {
			fmt.Printf("Owner %s has been created.\n", args[0])
		} else {
			fmt.Println("An owner account already exists.")
		}

	case "block":
		if len(args) < 1 {
			fmt.Println("Usage: admin block <user_id> [days] [reason]")
			os.Exit(1)
		}
		var days *int
		if len(args) > 1 {
			d, err := strconv.Atoi(args[1])
			if err != nil || d <= 0 {
				fmt.Println("Invalid duration. Please provide a positive number of days.")
				os.Exit(1)
			}
			days = &d
		}
		moderate(ctx, r, router.ModerationInput{
			UserID:   args[0],
			Action:   models.ActionBlock,
			Reason:   reason(args, 2),
			Duration: days,
		})

	case "unblock":
		if len(args) != 1 {
			fmt.Println("Usage: admin unblock <user_id>")
			os.Exit(1)
		}
		if _, err := r.LiftBlock(ctx, args[0]); err != nil {
			log.Fatalf("Error unblocking user: %v", err)
		}
		fmt.Printf("User %s has been unblocked.\n", args[0])

	case "warn":
		if len(args) < 1 {
			fmt.Println("Usage: admin warn <user_id> [reason]")
			os.Exit(1)
		}
		moderate(ctx, r, router.ModerationInput{
			UserID: args[0],
			Action: models.ActionWarning,
			Reason: reason(args, 1),
		})

	case "users":
		for _, u := range store.Users.Snapshot() {
			status := "active"
			if u.IsBlocked {
				status = "blocked"
			}
			fmt.Printf("%s\t%-20s\t%-8s\t%s\twarnings=%d\n", u.ID, u.Username, u.Role, status, u.Warnings)
		}

	default:
		fmt.Println("Unknown command")
		fmt.Println(usage)
		os.Exit(1)
	}
}

func moderate(ctx context.Context, r *router.Router, in router.ModerationInput) {
	in.ModeratorID = config.CLIModeratorID
	record, user, err := r.ApplyModeration(ctx, in)
	if err != nil {
		log.Fatalf("Error applying %s: %v", in.Action, err)
	}
	fmt.Printf("Applied %s to %s (%s).\n", record.Action, user.Username, user.ID)
}

func reason(args []string, from int) string {
	if len(args) <= from {
		return "applied from the admin CLI"
	}
	return strings.Join(args[from:], " ")
}
