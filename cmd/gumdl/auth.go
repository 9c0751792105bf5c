package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"gumdl/pkg/auth"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage Gumroad credentials",
	Long: `Manage stored Gumroad session credentials securely.

Credentials are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (backward compatibility)

Never share your cookies or config files!`,
}

// loginCmd represents the auth login command
var loginCmd = &cobra.Command{
	Use:   "login [account name]",
	Short: "Store Gumroad session cookies securely",
	Long: `Store Gumroad session cookies securely in the system keychain or encrypted file.

You will be prompted for:
  - An account name (if not provided)
  - The _gumroad_app_session cookie value
  - The _gumroad_guid cookie value
  - Your browser's user agent (optional, press Enter for default)

To get these values:
1. Log into https://app.gumroad.com/library in your browser
2. Open Developer Tools (F12)
3. Go to Application/Storage > Cookies > app.gumroad.com
4. Copy the _gumroad_app_session and _gumroad_guid values`,
	Example: `  # Interactive login
  gumdl auth login

  # Login with account name
  gumdl auth login personal`,
	Args: cobra.MaximumNArgs(1),
	Run:  runLogin,
}

// logoutCmd represents the auth logout command
var logoutCmd = &cobra.Command{
	Use:     "logout [account name]",
	Aliases: []string{"remove"},
	Short:   "Remove stored credentials",
	Long: `Remove stored Gumroad credentials.

If no account name is provided, you will be shown a list of stored
accounts to choose from.`,
	Example: `  # Interactive logout
  gumdl auth logout

  # Logout specific account
  gumdl auth logout personal`,
	Args: cobra.MaximumNArgs(1),
	Run:  runLogout,
}

// authListCmd represents the auth list command
var authListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored accounts",
	Long:  `List all stored Gumroad accounts with sanitized credential information.`,
	Run:   runList,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(authListCmd)
}

func runLogin(cmd *cobra.Command, args []string) {
	manager, err := auth.NewManager()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to initialize credential manager:", err)
		os.Exit(1)
	}

	var name string
	if len(args) > 0 {
		name = args[0]
	}

	reader := bufio.NewReader(os.Stdin)

	auth.ShowCookieExtractionGuide()

	fmt.Print("Ready to enter your cookies? (Y/n): ")
	ready, _ := reader.ReadString('\n')
	if strings.ToLower(strings.TrimSpace(ready)) == "n" {
		fmt.Println("\nRun 'gumdl auth login' when you're ready.")
		return
	}

	fmt.Println()

	if name == "" {
		fmt.Print("Account name (e.g. personal): ")
		input, err := reader.ReadString('\n')
		if err != nil {
			fmt.Fprintln(os.Stderr, "Failed to read account name:", err)
			os.Exit(1)
		}
		name = strings.TrimSpace(input)
	}

	if name == "" {
		fmt.Fprintln(os.Stderr, "Account name is required")
		os.Exit(1)
	}

	if existing, _ := manager.Retrieve(name); existing != nil {
		fmt.Printf("\nAccount '%s' already exists. Update credentials? (y/N): ", name)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return
		}
	}

	fmt.Println("\nEnter your cookie values (they will be hidden as you type):")
	fmt.Println()

	var session string
	for {
		fmt.Print("_gumroad_app_session cookie value: ")
		session, err = readPassword()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Failed to read app session:", err)
			os.Exit(1)
		}

		if len(session) < 20 {
			fmt.Println("\nThat doesn't look like a valid _gumroad_app_session.")
			fmt.Println("It should be a long string, often ending with = signs.")
			fmt.Print("\nTry again? (Y/n): ")
			retry, _ := reader.ReadString('\n')
			if strings.ToLower(strings.TrimSpace(retry)) == "n" {
				os.Exit(1)
			}
			continue
		}
		break
	}

	var userGuid string
	for {
		fmt.Print("\n_gumroad_guid cookie value: ")
		userGuid, err = readPassword()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Failed to read guid:", err)
			os.Exit(1)
		}

		if len(userGuid) < 8 {
			fmt.Println("\nThat doesn't look like a valid _gumroad_guid.")
			fmt.Println("It should be a hex identifier of at least 8 characters.")
			fmt.Print("\nTry again? (Y/n): ")
			retry, _ := reader.ReadString('\n')
			if strings.ToLower(strings.TrimSpace(retry)) == "n" {
				os.Exit(1)
			}
			continue
		}
		break
	}

	fmt.Print("\n\nUser Agent (press Enter to use default): ")
	userAgent, _ := reader.ReadString('\n')
	userAgent = strings.TrimSpace(userAgent)

	account := &auth.Account{
		Name:         name,
		AppSession:   session,
		Guid:         userGuid,
		UserAgent:    userAgent,
		LastModified: time.Now(),
	}

	sanitized := auth.SanitizeAccount(account)
	fmt.Println("\nSummary:")
	fmt.Printf("   Account: %s\n", name)
	fmt.Printf("   App Session: %s\n", sanitized.AppSession)
	fmt.Printf("   Guid: %s\n", sanitized.Guid)
	if userAgent != "" {
		fmt.Printf("   User Agent: %s\n", userAgent)
	}

	fmt.Println("\nStoring credentials securely...")
	if err := manager.Store(account); err != nil {
		fmt.Fprintln(os.Stderr, "Failed to store credentials:", err)
		os.Exit(1)
	}

	fmt.Println("\nCredentials stored successfully!")
	fmt.Println("\nQuick start:")
	fmt.Println("   Download your whole library:")
	fmt.Println("   $ gumdl")
	fmt.Println("\n   Use this account explicitly:")
	fmt.Printf("   $ gumdl download --account %s\n", name)
	fmt.Println("\nNever share your cookies or config files!")
}

func runLogout(cmd *cobra.Command, args []string) {
	manager, err := auth.NewManager()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to initialize credential manager:", err)
		os.Exit(1)
	}

	if len(args) > 0 {
		name := args[0]
		if err := manager.Delete(name); err != nil {
			fmt.Fprintln(os.Stderr, "Failed to remove account:", err)
			os.Exit(1)
		}
		fmt.Println("Account removed:", name)
		return
	}

	accounts, err := manager.List()
	if err != nil || len(accounts) == 0 {
		fmt.Println("No stored accounts found")
		return
	}

	reader := bufio.NewReader(os.Stdin)

	if len(accounts) == 1 {
		account := accounts[0]
		fmt.Printf("Remove account '%s'? (y/N): ", account.Name)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return
		}

		if err := manager.Delete(account.Name); err != nil {
			fmt.Fprintln(os.Stderr, "Failed to remove account:", err)
			os.Exit(1)
		}
		fmt.Println("Account removed:", account.Name)
		return
	}

	fmt.Println("Select account to remove:")
	for i, account := range accounts {
		fmt.Printf("  %d. %s\n", i+1, account.Name)
	}
	fmt.Printf("  0. Cancel\n\n")

	fmt.Print("Choice: ")
	input, _ := reader.ReadString('\n')

	var choice int
	fmt.Sscanf(strings.TrimSpace(input), "%d", &choice)

	if choice < 1 || choice > len(accounts) {
		return
	}

	account := accounts[choice-1]
	if err := manager.Delete(account.Name); err != nil {
		fmt.Fprintln(os.Stderr, "Failed to remove account:", err)
		os.Exit(1)
	}
	fmt.Println("Account removed:", account.Name)
}

func runList(cmd *cobra.Command, args []string) {
	manager, err := auth.NewManager()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to initialize credential manager:", err)
		os.Exit(1)
	}

	accounts, err := manager.List()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to list accounts:", err)
		os.Exit(1)
	}

	if len(accounts) == 0 {
		fmt.Println("No stored accounts. Use 'gumdl auth login' to add one.")
		return
	}

	fmt.Println("Stored accounts:")
	fmt.Println()

	for i, account := range accounts {
		sanitized := auth.SanitizeAccount(account)
		fmt.Printf("%d. Account: %s\n", i+1, sanitized.Name)
		fmt.Printf("   App Session: %s\n", sanitized.AppSession)
		fmt.Printf("   Guid: %s\n", sanitized.Guid)
		if sanitized.UserAgent != "" {
			fmt.Printf("   User Agent: %s\n", sanitized.UserAgent)
		}
		fmt.Printf("   Last Modified: %s\n", sanitized.LastModified.Format("2006-01-02 15:04:05"))
		fmt.Println()
	}
}

// readPassword reads a line without echoing it. Falls back to a plain
// read when stdin is not a terminal (pipes, CI).
func readPassword() (string, error) {
	fd := int(syscall.Stdin)
	if term.IsTerminal(fd) {
		data, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(data)), nil
	}

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
