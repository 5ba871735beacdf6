package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"annuaire-go/internal/annuaire"
	"annuaire-go/internal/app"
	"annuaire-go/internal/config"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer a.Close().
// operation identifies the CLI command being run (e.g. "ContactAdd", "UserCreate").
func newApp(operation string) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.New(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// actor returns the acting username from the persistent --as flag.
func actor(cmd *cobra.Command) (string, error) {
	as, _ := cmd.Flags().GetString("as")
	if as == "" {
		return "", fmt.Errorf("no acting user: pass --as USERNAME")
	}
	return as, nil
}

// promptPassword reads a password from the terminal without echo.
func promptPassword(label string) (string, error) {
	fmt.Printf("%s: ", label)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(b), nil
}

// promptNewPassword prompts twice and checks both entries match.
func promptNewPassword() (string, error) {
	pw, err := promptPassword("Password")
	if err != nil {
		return "", err
	}
	confirm, err := promptPassword("Confirm password")
	if err != nil {
		return "", err
	}
	if pw != confirm {
		return "", fmt.Errorf("passwords do not match")
	}
	return pw, nil
}

func printContacts(contacts []annuaire.Contact) {
	if len(contacts) == 0 {
		fmt.Println("No contacts found.")
		return
	}
	for _, c := range contacts {
		tel := c.Telephone
		if tel == "" {
			tel = "N/A"
		}
		adr := c.Adresse
		if adr == "" {
			adr = "N/A"
		}
		fmt.Printf("%s %s  <%s>  tel:%s  %s\n", c.Nom, c.Prenom, c.Email, tel, adr)
	}
}

var rootCmd = &cobra.Command{
	Use:   "annuaire",
	Short: "Multi-tenant contact directory",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		installID := uuid.New().String()

		cfg := config.NewConfig(installID, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Install ID: %s\n", installID)
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Install ID: %s\n", cfg.InstallID)
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Data Dir:   %s\n", cfg.DataDir)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		fmt.Printf("Store:      %s\n", cfg.Store.Type)
		fmt.Printf("Hasher:     %s\n", cfg.Auth.Hasher)
		return nil
	},
}

var configKeygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate encryption keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ConfigKeygen")
		if err != nil {
			return err
		}
		defer a.Close()

		if a.Encryptor().IsConfigured() {
			return fmt.Errorf("encryption keys already exist")
		}

		passphrase, err := promptNewPassword()
		if err != nil {
			return err
		}
		if err := a.Encryptor().Setup(passphrase); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}

		fmt.Println("Encryption keys generated.")
		return nil
	},
}

// init command: bootstrap the first administrator
var initCmd = &cobra.Command{
	Use:   "init USERNAME EMAIL",
	Short: "Create the first administrator account",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Bootstrap")
		if err != nil {
			return err
		}
		defer a.Close()

		password, err := promptNewPassword()
		if err != nil {
			return err
		}

		if err := a.Accounts.Bootstrap(args[0], password, args[1]); err != nil {
			return fmt.Errorf("creating administrator: %w", err)
		}

		fmt.Printf("Administrator %s created.\n", args[0])
		return nil
	},
}

// login command
var loginCmd = &cobra.Command{
	Use:   "login USERNAME",
	Short: "Verify credentials",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Login")
		if err != nil {
			return err
		}
		defer a.Close()

		password, err := promptPassword("Password")
		if err != nil {
			return err
		}

		role, err := a.Accounts.Authenticate(args[0], password)
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}

		fmt.Printf("Authenticated as %s (%s)\n", args[0], role)
		return nil
	},
}

// user commands
var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage accounts",
}

var userCreateCmd = &cobra.Command{
	Use:   "create USERNAME EMAIL",
	Short: "Create an account",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		admin, _ := cmd.Flags().GetBool("admin")

		as, err := actor(cmd)
		if err != nil {
			return err
		}

		a, err := newApp("UserCreate")
		if err != nil {
			return err
		}
		defer a.Close()

		password, err := promptNewPassword()
		if err != nil {
			return err
		}

		if err := a.Accounts.Create(as, args[0], password, args[1], admin); err != nil {
			return fmt.Errorf("creating account: %w", err)
		}

		fmt.Printf("Account %s created.\n", args[0])
		return nil
	},
}

var userRmCmd = &cobra.Command{
	Use:   "rm USERNAME",
	Short: "Delete an account and its directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		as, err := actor(cmd)
		if err != nil {
			return err
		}

		a, err := newApp("UserDelete")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Accounts.Delete(as, args[0]); err != nil {
			return fmt.Errorf("deleting account: %w", err)
		}

		fmt.Printf("Account %s deleted.\n", args[0])
		return nil
	},
}

var userUpdateCmd = &cobra.Command{
	Use:   "update USERNAME",
	Short: "Update an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		changePassword, _ := cmd.Flags().GetBool("password")

		as, err := actor(cmd)
		if err != nil {
			return err
		}

		a, err := newApp("UserUpdate")
		if err != nil {
			return err
		}
		defer a.Close()

		patch := annuaire.AccountPatch{Email: email}
		if changePassword {
			patch.Password, err = promptNewPassword()
			if err != nil {
				return err
			}
		}

		if err := a.Accounts.Update(as, args[0], patch); err != nil {
			return fmt.Errorf("updating account: %w", err)
		}

		fmt.Printf("Account %s updated.\n", args[0])
		return nil
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		as, err := actor(cmd)
		if err != nil {
			return err
		}

		a, err := newApp("UserList")
		if err != nil {
			return err
		}
		defer a.Close()

		accounts, err := a.Accounts.List(as)
		if err != nil {
			return fmt.Errorf("listing accounts: %w", err)
		}

		for _, acct := range accounts {
			marker := ""
			if acct.Admin {
				marker = "  [admin]"
			}
			fmt.Printf("%s  <%s>%s\n", acct.Username, acct.Email, marker)
		}
		return nil
	},
}

// contact commands
var contactCmd = &cobra.Command{
	Use:   "contact",
	Short: "Manage contacts",
}

var contactAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a contact to your directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		as, err := actor(cmd)
		if err != nil {
			return err
		}

		c := annuaire.Contact{}
		c.Nom, _ = cmd.Flags().GetString("nom")
		c.Prenom, _ = cmd.Flags().GetString("prenom")
		c.Email, _ = cmd.Flags().GetString("email")
		c.Telephone, _ = cmd.Flags().GetString("telephone")
		c.Adresse, _ = cmd.Flags().GetString("adresse")

		a, err := newApp("ContactAdd")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Directory.Add(as, c); err != nil {
			return fmt.Errorf("adding contact: %w", err)
		}

		fmt.Printf("Contact %s %s added.\n", c.Nom, c.Prenom)
		return nil
	},
}

var contactListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")

		as, err := actor(cmd)
		if err != nil {
			return err
		}

		a, err := newApp("ContactList")
		if err != nil {
			return err
		}
		defer a.Close()

		contacts, err := a.Directory.List(as, owner)
		if err != nil && !errors.Is(err, annuaire.ErrPermissionDenied) {
			return fmt.Errorf("listing contacts: %w", err)
		}

		printContacts(contacts)
		return nil
	},
}

var contactSearchCmd = &cobra.Command{
	Use:   "search FIELD VALUE",
	Short: "Search a directory",
	Long: "Search contacts by case-insensitive substring match.\n" +
		"FIELD is one of: " + strings.Join(annuaire.SearchFields, ", ") + ".",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")

		as, err := actor(cmd)
		if err != nil {
			return err
		}

		a, err := newApp("ContactSearch")
		if err != nil {
			return err
		}
		defer a.Close()

		contacts, err := a.Directory.Search(as, owner, args[0], args[1])
		if err != nil && !errors.Is(err, annuaire.ErrPermissionDenied) {
			return fmt.Errorf("searching contacts: %w", err)
		}

		printContacts(contacts)
		return nil
	},
}

var contactRmCmd = &cobra.Command{
	Use:   "rm EMAIL",
	Short: "Delete a contact from your directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		as, err := actor(cmd)
		if err != nil {
			return err
		}

		a, err := newApp("ContactDelete")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Directory.Delete(as, args[0]); err != nil {
			return fmt.Errorf("deleting contact: %w", err)
		}

		fmt.Printf("Contact %s deleted.\n", args[0])
		return nil
	},
}

var contactUpdateCmd = &cobra.Command{
	Use:   "update EMAIL",
	Short: "Update a contact in your directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		as, err := actor(cmd)
		if err != nil {
			return err
		}

		// Only flags the user actually set become part of the patch, so an
		// explicit empty --telephone clears the field while omitting it
		// leaves the field alone.
		var patch annuaire.ContactPatch
		for flag, dst := range map[string]**string{
			"nom":       &patch.Nom,
			"prenom":    &patch.Prenom,
			"email":     &patch.Email,
			"telephone": &patch.Telephone,
			"adresse":   &patch.Adresse,
		} {
			if cmd.Flags().Changed(flag) {
				v, _ := cmd.Flags().GetString(flag)
				*dst = &v
			}
		}

		a, err := newApp("ContactUpdate")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Directory.Update(as, args[0], patch); err != nil {
			return fmt.Errorf("updating contact: %w", err)
		}

		fmt.Printf("Contact %s updated.\n", args[0])
		return nil
	},
}

var contactExportCmd = &cobra.Command{
	Use:   "export PATH",
	Short: "Export your directory to a CSV file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		encrypt, _ := cmd.Flags().GetBool("encrypt")

		as, err := actor(cmd)
		if err != nil {
			return err
		}

		a, err := newApp("ContactExport")
		if err != nil {
			return err
		}
		defer a.Close()

		if !encrypt {
			if err := a.Directory.Export(as, args[0]); err != nil {
				return fmt.Errorf("exporting contacts: %w", err)
			}
			fmt.Printf("Directory exported to %s\n", args[0])
			return nil
		}

		if !a.Encryptor().IsConfigured() {
			return fmt.Errorf("no encryption keys: run `annuaire config keygen` first")
		}

		var buf bytes.Buffer
		if err := a.Directory.ExportTo(as, &buf); err != nil {
			return fmt.Errorf("exporting contacts: %w", err)
		}

		f, err := os.Create(args[0])
		if err != nil {
			return fmt.Errorf("creating export file: %w", err)
		}
		err = a.Encryptor().Encrypt(&buf, f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("encrypting export: %w", err)
		}

		fmt.Printf("Encrypted directory exported to %s\n", args[0])
		return nil
	},
}

var contactImportCmd = &cobra.Command{
	Use:   "import PATH",
	Short: "Import contacts from a CSV file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		decrypt, _ := cmd.Flags().GetBool("decrypt")

		as, err := actor(cmd)
		if err != nil {
			return err
		}

		a, err := newApp("ContactImport")
		if err != nil {
			return err
		}
		defer a.Close()

		var summary annuaire.ImportSummary
		if decrypt {
			passphrase, err := promptPassword("Key passphrase")
			if err != nil {
				return err
			}
			dc, err := a.Encryptor().Unlock(passphrase)
			if err != nil {
				return fmt.Errorf("unlocking private key: %w", err)
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening import file: %w", err)
			}
			var buf bytes.Buffer
			err = dc.Decrypt(f, &buf)
			f.Close()
			if err != nil {
				return fmt.Errorf("decrypting import: %w", err)
			}
			summary, err = a.Directory.ImportFrom(as, &buf)
			if err != nil {
				return fmt.Errorf("importing contacts: %w", err)
			}
		} else {
			summary, err = a.Directory.Import(as, args[0])
			if err != nil {
				return fmt.Errorf("importing contacts: %w", err)
			}
		}

		fmt.Println(summary.Report())
		return nil
	},
}

// perm commands
var permCmd = &cobra.Command{
	Use:   "perm",
	Short: "Manage directory access grants",
}

var permGrantCmd = &cobra.Command{
	Use:   "grant USERNAME LEVEL",
	Short: "Grant directory access (read, write, or all)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		as, err := actor(cmd)
		if err != nil {
			return err
		}

		a, err := newApp("PermGrant")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Permissions.Grant(as, args[0], annuaire.Level(args[1])); err != nil {
			return fmt.Errorf("granting access: %w", err)
		}

		fmt.Printf("Granted %s access to %s.\n", args[1], args[0])
		return nil
	},
}

var permRevokeCmd = &cobra.Command{
	Use:   "revoke USERNAME",
	Short: "Revoke directory access",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		as, err := actor(cmd)
		if err != nil {
			return err
		}

		a, err := newApp("PermRevoke")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Permissions.Revoke(as, args[0]); err != nil {
			return fmt.Errorf("revoking access: %w", err)
		}

		fmt.Printf("Revoked access for %s.\n", args[0])
		return nil
	},
}

var permListCmd = &cobra.Command{
	Use:   "list",
	Short: "List grants you have given",
	RunE: func(cmd *cobra.Command, args []string) error {
		as, err := actor(cmd)
		if err != nil {
			return err
		}

		a, err := newApp("PermList")
		if err != nil {
			return err
		}
		defer a.Close()

		grants, err := a.Permissions.GrantedBy(as)
		if err != nil {
			return fmt.Errorf("listing grants: %w", err)
		}

		if len(grants) == 0 {
			fmt.Println("No grants.")
			return nil
		}
		for _, g := range grants {
			fmt.Printf("%s: %s\n", g.Grantee, g.Level)
		}
		return nil
	},
}

var permReceivedCmd = &cobra.Command{
	Use:   "received",
	Short: "List grants you have received",
	RunE: func(cmd *cobra.Command, args []string) error {
		as, err := actor(cmd)
		if err != nil {
			return err
		}

		a, err := newApp("PermReceived")
		if err != nil {
			return err
		}
		defer a.Close()

		grants, err := a.Permissions.ReceivedBy(as)
		if err != nil {
			return fmt.Errorf("listing grants: %w", err)
		}

		if len(grants) == 0 {
			fmt.Println("No grants.")
			return nil
		}
		for _, g := range grants {
			fmt.Printf("%s: %s\n", g.Owner, g.Level)
		}
		return nil
	},
}

// backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Snapshot the data directory to the vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		encrypt, _ := cmd.Flags().GetBool("encrypt")

		a, err := newApp("Backup")
		if err != nil {
			return err
		}
		defer a.Close()

		version, err := a.Backup(encrypt)
		if err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}

		fmt.Printf("Backup uploaded (version %d)\n", version)
		return nil
	},
}

// restore command
var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore the data directory from the vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		decrypt, _ := cmd.Flags().GetBool("decrypt")

		a, err := newApp("Restore")
		if err != nil {
			return err
		}
		defer a.Close()

		passphrase := ""
		if decrypt {
			passphrase, err = promptPassword("Key passphrase")
			if err != nil {
				return err
			}
			if passphrase == "" {
				return fmt.Errorf("empty passphrase")
			}
		}

		if err := a.Restore(passphrase); err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}

		fmt.Println("Data directory restored from vault.")
		return nil
	},
}

func addContactFieldFlags(cmd *cobra.Command) {
	cmd.Flags().String("nom", "", "Last name")
	cmd.Flags().String("prenom", "", "First name")
	cmd.Flags().String("email", "", "Email address")
	cmd.Flags().String("telephone", "", "Phone number")
	cmd.Flags().String("adresse", "", "Postal address")
}

func init() {
	rootCmd.PersistentFlags().String("as", "", "Acting username")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configKeygenCmd)

	// user subcommands
	userCmd.AddCommand(userCreateCmd)
	userCreateCmd.Flags().Bool("admin", false, "Grant administrator privileges")
	userCmd.AddCommand(userRmCmd)
	userCmd.AddCommand(userUpdateCmd)
	userUpdateCmd.Flags().String("email", "", "New email address")
	userUpdateCmd.Flags().Bool("password", false, "Prompt for a new password")
	userCmd.AddCommand(userListCmd)

	// contact subcommands
	contactCmd.AddCommand(contactAddCmd)
	addContactFieldFlags(contactAddCmd)
	contactCmd.AddCommand(contactListCmd)
	contactListCmd.Flags().String("owner", "", "Directory owner (defaults to acting user)")
	contactCmd.AddCommand(contactSearchCmd)
	contactSearchCmd.Flags().String("owner", "", "Directory owner (defaults to acting user)")
	contactCmd.AddCommand(contactRmCmd)
	contactCmd.AddCommand(contactUpdateCmd)
	addContactFieldFlags(contactUpdateCmd)
	contactCmd.AddCommand(contactExportCmd)
	contactExportCmd.Flags().Bool("encrypt", false, "Encrypt the export with the configured public key")
	contactCmd.AddCommand(contactImportCmd)
	contactImportCmd.Flags().Bool("decrypt", false, "Decrypt an encrypted export before importing")

	// perm subcommands
	permCmd.AddCommand(permGrantCmd)
	permCmd.AddCommand(permRevokeCmd)
	permCmd.AddCommand(permListCmd)
	permCmd.AddCommand(permReceivedCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(contactCmd)
	rootCmd.AddCommand(permCmd)
	rootCmd.AddCommand(backupCmd)
	backupCmd.Flags().Bool("encrypt", false, "Encrypt the snapshot with the configured public key")
	rootCmd.AddCommand(restoreCmd)
	restoreCmd.Flags().Bool("decrypt", false, "Decrypt an encrypted snapshot")
}
