package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	apiclient "github.com/splax/todos/pkg/api/client"
)

var buildVersion = "dev"

const requestTimeout = 15 * time.Second

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "login":
		err = commandLogin(args)
	case "signup":
		err = commandSignup(args)
	case "logout":
		err = commandLogout(args)
	case "refresh":
		err = commandRefresh(args)
	case "todos":
		err = commandTodos(args)
	case "users":
		err = commandUsers(args)
	case "version", "--version", "-v":
		printVersion()
		return
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// newClient builds an API client that persists renewed tokens to the config file.
func newClient(cfg *cliConfig, requireSession bool) (*apiclient.Client, error) {
	if requireSession && strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, errors.New("please login first using 'todo login'")
	}
	return apiclient.New(cfg.APIBaseURL,
		apiclient.WithSession(cfg.session()),
		apiclient.OnRefresh(func(s apiclient.Session) {
			cfg.setSession(s)
			if err := saveConfig(*cfg); err != nil {
				fmt.Fprintf(os.Stderr, "warning: could not save session: %v\n", err)
			}
		}),
	)
}

func readPassword(value string) (string, error) {
	if secret := strings.TrimSpace(value); secret != "" {
		return secret, nil
	}
	fmt.Print("Password: ")
	bytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Print("\n")
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(bytes), nil
}

func commandLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	apiBase := fs.String("api", "", "API base URL (default "+defaultAPIBaseURL+")")
	fs.Parse(args)

	if strings.TrimSpace(*email) == "" {
		return errors.New("--email is required")
	}
	secret, err := readPassword(*password)
	if err != nil {
		return err
	}

	cfg, _ := loadConfig()
	if strings.TrimSpace(*apiBase) != "" {
		cfg.APIBaseURL = *apiBase
	} else if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBaseURL
	}
	client, err := newClient(&cfg, false)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if _, err := client.Login(ctx, *email, secret); err != nil {
		return err
	}
	fmt.Println("login successful")
	return nil
}

func commandSignup(args []string) error {
	fs := flag.NewFlagSet("signup", flag.ExitOnError)
	name := fs.String("name", "", "Display name (3-30 characters)")
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	fs.Parse(args)

	if strings.TrimSpace(*name) == "" || strings.TrimSpace(*email) == "" {
		return errors.New("--name and --email are required")
	}
	secret, err := readPassword(*password)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := newClient(&cfg, false)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	user, err := client.Signup(ctx, *name, *email, secret)
	if err != nil {
		return err
	}
	fmt.Printf("account %d created for %s, run 'todo login --email %s'\n", user.ID, user.Email, user.Email)
	return nil
}

func commandLogout(args []string) error {
	fs := flag.NewFlagSet("logout", flag.ExitOnError)
	fs.Parse(args)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := newClient(&cfg, false)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := client.Logout(ctx); err != nil {
		return err
	}
	fmt.Println("logged out")
	return nil
}

func commandRefresh(args []string) error {
	fs := flag.NewFlagSet("refresh", flag.ExitOnError)
	fs.Parse(args)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := newClient(&cfg, true)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if _, err := client.Refresh(ctx); err != nil {
		if apiclient.IsStatus(err, http.StatusForbidden) {
			return errors.New("session expired, please login again")
		}
		return err
	}
	fmt.Println("access token refreshed")
	return nil
}

func printUsage() {
	fmt.Printf("todo CLI %s\n\n", buildVersion)
	fmt.Print(`Usage:
	todo login --email user@example.com [--password secret] [--api http://localhost:3000]
	todo signup --name <name> --email <email> [--password secret]
	todo logout
	todo refresh
	todo todos list
	todo todos add --name <name> [--done]
	todo todos update --id <id> [--name <name>] [--done=true|false]
	todo todos done --id <id>
	todo todos rm --id <id>
	todo users list [--q text] [--page N] [--size N]
	todo users get --id <id>
	todo users create --name <name> --email <email> [--password secret]
	todo users update --id <id> [--email <email>] [--password secret]
	todo users rm --id <id>
	todo version
`)
}

func printVersion() {
	fmt.Println(strings.TrimSpace(buildVersion))
}
