// Command boxumctl performs operator tasks against the account database.
//
//	boxumctl migrate up|down|version
//	boxumctl create-user -email a@b.com -type supplier -first Ada -last Lovelace -company "Ada Ltd" -active
//	boxumctl totp-code -secret JBSWY3DPEHPK3PXP
//
// It reads the same environment as boxum-server.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/Yellowatch/boxumco"
	"github.com/Yellowatch/boxumco/internal/config"
	"github.com/Yellowatch/boxumco/mail"
	"github.com/Yellowatch/boxumco/store/postgres"
	"go.uber.org/zap"
	"golang.org/x/term"
)

const usage = `usage:
  boxumctl migrate up|down|version
  boxumctl create-user -email EMAIL [-type client|supplier] -first NAME -last NAME [-company NAME] [-active]
  boxumctl totp-code -secret BASE32 [-digits 6] [-period 30]`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	ctx := context.Background()
	var err error
	switch os.Args[1] {
	case "migrate":
		err = runMigrate(ctx, os.Args[2:])
	case "create-user":
		err = runCreateUser(ctx, os.Args[2:])
	case "totp-code":
		err = runTOTPCode(os.Args[2:], os.Stdout)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "boxumctl: %v\n", err)
		os.Exit(1)
	}
}

func runMigrate(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("migrate needs one of up, down, version")
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.StoreBackend != "postgres" {
		return errors.New("migrate requires STORE_BACKEND=postgres")
	}
	pool, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	switch args[0] {
	case "up":
		return postgres.Migrate(ctx, pool)
	case "down":
		return postgres.MigrateDown(ctx, pool)
	case "version":
		v, err := postgres.MigrationVersion(ctx, pool)
		if err != nil {
			return err
		}
		fmt.Println(v)
		return nil
	default:
		return fmt.Errorf("unknown migrate command %q", args[0])
	}
}

func runCreateUser(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	var (
		email   = fs.String("email", "", "account email")
		kind    = fs.String("type", "client", "account type: client or supplier")
		first   = fs.String("first", "", "first name")
		last    = fs.String("last", "", "last name")
		company = fs.String("company", "", "company name")
		active  = fs.Bool("active", false, "activate without email verification")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	accountType, err := boxumco.ParseAccountType(*kind)
	if err != nil {
		return err
	}
	contact := boxumco.Contact{FirstName: *first, LastName: *last}
	var profile boxumco.Profile = boxumco.ClientProfile{Contact: contact, CompanyName: *company}
	if accountType == boxumco.AccountSupplier {
		profile = boxumco.SupplierProfile{Contact: contact, Company: boxumco.Company{Name: *company}}
	}

	pw, err := readPassword(os.Stdin, os.Stderr)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.StoreBackend != "postgres" {
		return errors.New("create-user requires STORE_BACKEND=postgres")
	}
	pool, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	store := postgres.New(pool)

	logger, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	engineCfg := cfg.EngineConfig()
	engineCfg.Throttle.Enabled = false
	engineCfg.Audit.Enabled = false
	engine, err := boxumco.New().
		WithConfig(engineCfg).
		WithCredentialStore(store).
		WithDeviceStore(store).
		WithMailer(mail.NewLogMailer(logger)).
		WithLogger(logger).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	res, err := engine.Register(ctx, boxumco.RegisterRequest{Email: *email, Password: pw, Profile: profile})
	if err != nil {
		return err
	}
	if *active {
		if err := store.SetActive(ctx, res.UserID, true); err != nil {
			return err
		}
	}
	fmt.Printf("created %s account %s (active=%t)\n", res.AccountType, res.UserID, *active)
	return nil
}

// readPassword prompts twice on a terminal and reads one line otherwise.
func readPassword(in *os.File, prompt io.Writer) (string, error) {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Fprint(prompt, "Password: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return "", err
	}
	fmt.Fprint(prompt, "Password (again): ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return "", err
	}
	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	return string(first), nil
}

func runTOTPCode(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("totp-code", flag.ContinueOnError)
	var (
		secret = fs.String("secret", "", "base32 secret")
		digits = fs.Int("digits", 6, "code length")
		period = fs.Int("period", 30, "time step in seconds")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *secret == "" {
		return errors.New("-secret is required")
	}

	code, err := boxumco.TOTPCode(*secret, boxumco.TOTPConfig{Digits: *digits, Period: *period}, time.Now())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, code)
	return err
}
