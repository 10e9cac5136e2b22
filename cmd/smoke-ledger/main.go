// Smoke test for a running checkbook-api: posts the canonical
// asset-to-expense example and verifies both legs, then deletes the
// transaction and verifies the reversal.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"
)

func main() {
	base := os.Getenv("CHECKBOOK_API_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	checkbook := fmt.Sprintf("smoke-%d", time.Now().UnixNano())
	client := &http.Client{Timeout: 5 * time.Second}

	checking := createAccount(client, base, checkbook, map[string]any{
		"code": "1000", "name": "Checking", "type": "asset", "opening_balance": "500.00",
	})
	groceries := createAccount(client, base, checkbook, map[string]any{
		"code": "5000", "name": "Groceries", "type": "expense",
	})

	tx := postJSON(client, base+"/v1/transactions", map[string]any{
		"checkbook_id":    checkbook,
		"type":            "debit",
		"date":            time.Now().UTC().Format("2006-01-02"),
		"from_account_id": checking,
		"to_account_id":   groceries,
		"amount":          "200.00",
		"description":     "smoke posting",
	}, http.StatusCreated)
	txID := tx["id"].(string)

	if got := balance(client, base, checking); got != -20000 {
		log.Fatalf("checking leg: expected -20000, got %v", got)
	}
	if got := balance(client, base, groceries); got != 20000 {
		log.Fatalf("groceries leg: expected +20000, got %v", got)
	}

	check := getJSON(client, base+"/v1/checkbooks/"+checkbook+"/consistency", http.StatusOK)
	if check["consistent"] != true {
		log.Fatalf("stored balances disagree with replay: %v", check)
	}

	req, err := http.NewRequest(http.MethodDelete, base+"/v1/transactions/"+txID, nil)
	if err != nil {
		log.Fatalf("delete request: %v", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("delete transaction: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		log.Fatalf("delete transaction: unexpected status %d", resp.StatusCode)
	}

	if got := balance(client, base, checking); got != 0 {
		log.Fatalf("checking not restored after delete: %v", got)
	}
	if got := balance(client, base, groceries); got != 0 {
		log.Fatalf("groceries not restored after delete: %v", got)
	}

	fmt.Printf("✅ checkbook smoke test passed: checkbook=%s\n", checkbook)
}

func createAccount(client *http.Client, base, checkbook string, body map[string]any) string {
	acc := postJSON(client, base+"/v1/checkbooks/"+checkbook+"/accounts", body, http.StatusCreated)
	return acc["id"].(string)
}

func balance(client *http.Client, base, accountID string) float64 {
	acc := getJSON(client, base+"/v1/accounts/"+accountID, http.StatusOK)
	return acc["balance"].(float64)
}

func postJSON(client *http.Client, url string, body map[string]any, wantStatus int) map[string]any {
	payload, err := json.Marshal(body)
	if err != nil {
		log.Fatalf("marshal %s: %v", url, err)
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("post %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		log.Fatalf("post %s: expected %d, got %d", url, wantStatus, resp.StatusCode)
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		log.Fatalf("decode %s: %v", url, err)
	}
	return out
}

func getJSON(client *http.Client, url string, wantStatus int) map[string]any {
	resp, err := client.Get(url)
	if err != nil {
		log.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		log.Fatalf("get %s: expected %d, got %d", url, wantStatus, resp.StatusCode)
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		log.Fatalf("decode %s: %v", url, err)
	}
	return out
}
