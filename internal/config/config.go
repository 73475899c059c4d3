package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServiceName    string
	DatabaseURL    string
	DatabaseDriver string

	HTTPAddr string

	// OrganizationID is the CLI's default organization scope.
	OrganizationID string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	LogLevel      string
	LogFormat     string
	LogOutput     string
	LogTimeFormat string

	InvoiceDueDays int
	QuoteValidDays int
}

// Load reads .env when present, then the environment. Non-empty flag values
// passed in win over both.
func Load(dbConn, dbDriver string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	if dbConn == "" {
		dbConn = getEnv("DATABASE_URL", "./billing.db")
	}

	if dbDriver == "" {
		dbDriver = getEnv("DATABASE_DRIVER", "sqlite3")
	}

	smtpPort, err := getEnvInt("SMTP_PORT", 587)
	if err != nil {
		return nil, err
	}
	dueDays, err := getEnvInt("INVOICE_DUE_DAYS", 30)
	if err != nil {
		return nil, err
	}
	validDays, err := getEnvInt("QUOTE_VALID_DAYS", 30)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ServiceName:    getEnv("SERVICE_NAME", "billing"),
		DatabaseURL:    dbConn,
		DatabaseDriver: dbDriver,
		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
		OrganizationID: getEnv("BILLING_ORG", ""),
		SMTPHost:       getEnv("SMTP_HOST", ""),
		SMTPPort:       smtpPort,
		SMTPUsername:   getEnv("SMTP_USERNAME", ""),
		SMTPPassword:   getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:       getEnv("SMTP_FROM", "billing@localhost"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "console"),
		LogOutput:      getEnv("LOG_OUTPUT", "stderr"),
		LogTimeFormat:  getEnv("LOG_TIME_FORMAT", time.RFC3339),
		InvoiceDueDays: dueDays,
		QuoteValidDays: validDays,
	}

	return cfg, nil
}

// SMTPEnabled reports whether outbound mail can be delivered.
func (c *Config) SMTPEnabled() bool {
	return c.SMTPHost != ""
}

// Dump prints the effective settings. The SMTP password is never shown.
func (c *Config) Dump() {
	fmt.Printf("Service Name: %s\n", c.ServiceName)
	fmt.Printf("Database URL: %s\n", c.DatabaseURL)
	fmt.Printf("Database Driver: %s\n", c.DatabaseDriver)
	fmt.Printf("HTTP Address: %s\n", c.HTTPAddr)
	fmt.Printf("Organization: %s\n", c.OrganizationID)
	fmt.Printf("SMTP Host: %s:%d\n", c.SMTPHost, c.SMTPPort)
	fmt.Printf("SMTP From: %s\n", c.SMTPFrom)
	fmt.Printf("Log: %s %s to %s\n", c.LogLevel, c.LogFormat, c.LogOutput)
	fmt.Printf("Invoice Due Days: %d\n", c.InvoiceDueDays)
	fmt.Printf("Quote Valid Days: %d\n", c.QuoteValidDays)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("environment variable %s must be an integer: %w", key, err)
	}
	return n, nil
}
