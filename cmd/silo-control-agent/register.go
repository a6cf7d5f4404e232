package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/EternisAI/silo-control/internal/agent"
	"github.com/EternisAI/silo-control/internal/api/http/dto"
)

// runRegister registers this host once and writes the credentials file, so
// an agent can be provisioned before its first run.
func runRegister(args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	server := fs.String("server", "", "Controller URL (e.g., http://controller:8080)")
	credentialsPath := fs.String("credentials", "agent_credentials.yaml", "Where to save the credentials")
	force := fs.Bool("force", false, "Overwrite existing credentials")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *server == "" {
		return fmt.Errorf("--server is required")
	}
	serverURL := strings.TrimRight(*server, "/")

	if !*force {
		if existing, ok, _ := agent.LoadCredentials(*credentialsPath); ok {
			return fmt.Errorf("%s already holds credentials for agent %s (use --force to replace)", *credentialsPath, existing.AgentID)
		}
	}

	resp, err := http.Post(serverURL+"/api/register", "application/json", nil)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("registration failed (HTTP %d): %s", resp.StatusCode, string(body))
	}

	var regResp dto.RegisterResponse
	if err := json.Unmarshal(body, &regResp); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	creds := agent.Credentials{
		AgentID:   regResp.AgentID,
		Token:     regResp.Token,
		ServerURL: serverURL,
		CreatedAt: time.Now(),
	}
	if !creds.Valid() {
		return fmt.Errorf("server returned incomplete credentials")
	}
	if err := agent.SaveCredentials(*credentialsPath, creds); err != nil {
		return err
	}

	fmt.Println("Registration successful!")
	fmt.Printf("  Agent ID:    %s\n", creds.AgentID)
	fmt.Printf("  Credentials: %s\n", *credentialsPath)
	fmt.Println()
	fmt.Println("Add the following to your agent application.yml:")
	fmt.Println()
	fmt.Printf("agent:\n")
	fmt.Printf("  server_url: %s\n", serverURL)
	fmt.Printf("  credentials_path: %s\n", *credentialsPath)

	return nil
}
