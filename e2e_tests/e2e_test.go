package e2etests

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

const (
	baseURL   = "http://localhost:8080"
	timeout   = 5 * time.Second
	waitReady = 20 * time.Second
)

var httpClient = &http.Client{Timeout: timeout}

type actor struct {
	id   int64
	role string
}

var (
	creator = actor{id: 1, role: "creator"}
	backer2 = actor{id: 2, role: "backer"}
	backer3 = actor{id: 3, role: "backer"}
	admin   = actor{id: 900, role: "admin"}
)

// Full escrow walkthrough against a running instance: project lifecycle,
// pledging, voting, release, rejection-triggered refund, and the custody
// conservation identity at the end.
func TestE2E_EscrowFlow(t *testing.T) {
	waitUntilReady(t)

	var projectID, m1ID, m2ID, pledgeAID, pledgeBID int64

	t.Run("creator_creates_draft_project", func(t *testing.T) {
		code, body := doJSON(t, creator, http.MethodPost, "/projects", map[string]any{
			"title":    "community garden kit",
			"goal":     "1000.00",
			"currency": "USD",
			"startAt":  time.Now().UTC().Format(time.RFC3339),
			"endAt":    time.Now().Add(30 * 24 * time.Hour).UTC().Format(time.RFC3339),
		})
		if code != http.StatusCreated {
			t.Fatalf("create project: want 201, got %d (%s)", code, body)
		}

		projectID = fieldInt(t, body, "id")
		if got := fieldString(t, body, "status"); got != "draft" {
			t.Fatalf("new project status: want draft, got %s", got)
		}
	})

	t.Run("creator_adds_milestones", func(t *testing.T) {
		code, body := doJSON(t, creator, http.MethodPost, fmt.Sprintf("/projects/%d/milestones", projectID), map[string]any{
			"title":      "seed purchase",
			"target":     "400.00",
			"currency":   "USD",
			"orderIndex": 0,
		})
		if code != http.StatusCreated {
			t.Fatalf("milestone 1: want 201, got %d (%s)", code, body)
		}
		m1ID = fieldInt(t, body, "id")

		code, body = doJSON(t, creator, http.MethodPost, fmt.Sprintf("/projects/%d/milestones", projectID), map[string]any{
			"title":      "construction",
			"target":     "600.00",
			"currency":   "USD",
			"orderIndex": 1,
		})
		if code != http.StatusCreated {
			t.Fatalf("milestone 2: want 201, got %d (%s)", code, body)
		}
		m2ID = fieldInt(t, body, "id")

		// Duplicate order index conflicts.
		code, _ = doJSON(t, creator, http.MethodPost, fmt.Sprintf("/projects/%d/milestones", projectID), map[string]any{
			"title":      "dup",
			"target":     "10.00",
			"currency":   "USD",
			"orderIndex": 1,
		})
		if code != http.StatusConflict {
			t.Fatalf("duplicate order index: want 409, got %d", code)
		}
	})

	t.Run("pledge_on_draft_rejected", func(t *testing.T) {
		code, _ := doJSON(t, backer2, http.MethodPost, fmt.Sprintf("/projects/%d/pledges", projectID), map[string]any{
			"amount":   "100.00",
			"currency": "USD",
		})
		if code != http.StatusBadRequest {
			t.Fatalf("pledge on draft: want 400, got %d", code)
		}
	})

	t.Run("creator_activates_project", func(t *testing.T) {
		code, body := doJSON(t, creator, http.MethodPost, fmt.Sprintf("/projects/%d/activate", projectID), nil)
		if code != http.StatusOK {
			t.Fatalf("activate: want 200, got %d (%s)", code, body)
		}
		if got := fieldString(t, body, "status"); got != "active" {
			t.Fatalf("status after activate: want active, got %s", got)
		}
	})

	t.Run("backers_pledge", func(t *testing.T) {
		code, body := doJSON(t, backer2, http.MethodPost, fmt.Sprintf("/projects/%d/pledges", projectID), map[string]any{
			"amount":     "600.00",
			"currency":   "USD",
			"paymentRef": "settle-a",
		})
		if code != http.StatusCreated {
			t.Fatalf("pledge A: want 201, got %d (%s)", code, body)
		}
		pledgeAID = fieldInt(t, body, "id")

		code, body = doJSON(t, backer3, http.MethodPost, fmt.Sprintf("/projects/%d/pledges", projectID), map[string]any{
			"amount":     "500.00",
			"currency":   "USD",
			"paymentRef": "settle-b",
		})
		if code != http.StatusCreated {
			t.Fatalf("pledge B: want 201, got %d (%s)", code, body)
		}
		pledgeBID = fieldInt(t, body, "id")

		// Zero amount never enters the book.
		code, _ = doJSON(t, backer2, http.MethodPost, fmt.Sprintf("/projects/%d/pledges", projectID), map[string]any{
			"amount":   "0",
			"currency": "USD",
		})
		if code != http.StatusBadRequest {
			t.Fatalf("zero pledge: want 400, got %d", code)
		}
	})

	t.Run("milestone1_approved_and_released", func(t *testing.T) {
		code, body := doJSON(t, creator, http.MethodPost, fmt.Sprintf("/milestones/%d/open-voting", m1ID), nil)
		if code != http.StatusOK {
			t.Fatalf("open voting: want 200, got %d (%s)", code, body)
		}

		code, body = doJSON(t, backer2, http.MethodPost, fmt.Sprintf("/milestones/%d/votes", m1ID), map[string]any{
			"decision": "approve",
		})
		if code != http.StatusOK {
			t.Fatalf("approve vote: want 200, got %d (%s)", code, body)
		}

		code, body = doJSON(t, creator, http.MethodPost, fmt.Sprintf("/milestones/%d/release", m1ID), map[string]any{
			"txRef": "payout-m1",
		})
		if code != http.StatusCreated {
			t.Fatalf("release: want 201, got %d (%s)", code, body)
		}

		if got := walletBalance(t, "creator", creator.id, "USD"); got != "400.00" {
			t.Fatalf("creator wallet: want 400.00, got %s", got)
		}

		// At-most-once: the second release conflicts and nothing moves.
		code, _ = doJSON(t, creator, http.MethodPost, fmt.Sprintf("/milestones/%d/release", m1ID), map[string]any{
			"txRef": "payout-m1-again",
		})
		if code != http.StatusConflict {
			t.Fatalf("second release: want 409, got %d", code)
		}
		if got := walletBalance(t, "creator", creator.id, "USD"); got != "400.00" {
			t.Fatalf("creator wallet after replay: want 400.00, got %s", got)
		}
	})

	t.Run("milestone2_rejected_refund_auto_processes", func(t *testing.T) {
		code, body := doJSON(t, creator, http.MethodPost, fmt.Sprintf("/milestones/%d/open-voting", m2ID), nil)
		if code != http.StatusOK {
			t.Fatalf("open voting: want 200, got %d (%s)", code, body)
		}

		code, body = doJSON(t, backer3, http.MethodPost, fmt.Sprintf("/milestones/%d/votes", m2ID), map[string]any{
			"decision": "reject",
		})
		if code != http.StatusOK {
			t.Fatalf("reject vote: want 200, got %d (%s)", code, body)
		}

		code, body = doJSON(t, backer2, http.MethodPost, fmt.Sprintf("/pledges/%d/refunds", pledgeAID), map[string]any{
			"milestoneId": m2ID,
			"reason":      "milestone rejected",
		})
		if code != http.StatusCreated {
			t.Fatalf("request refund: want 201, got %d (%s)", code, body)
		}
		if got := fieldString(t, body, "status"); got != "processed" {
			t.Fatalf("refund status: want processed, got %s", got)
		}

		// Pledge A paid 400 into milestone 1, so 200 comes back.
		if got := fieldString(t, body, "amount"); got != "200.00" {
			t.Fatalf("refund amount: want 200.00, got %s", got)
		}
		if got := walletBalance(t, "backer", backer2.id, "USD"); got != "200.00" {
			t.Fatalf("backer wallet: want 200.00, got %s", got)
		}

		// The pledge left Active; a second request is refused.
		code, _ = doJSON(t, backer2, http.MethodPost, fmt.Sprintf("/pledges/%d/refunds", pledgeAID), map[string]any{
			"reason": "again",
		})
		if code != http.StatusBadRequest {
			t.Fatalf("second refund request: want 400, got %d", code)
		}
	})

	t.Run("conservation_holds", func(t *testing.T) {
		// wallets + active escrow remainders == everything ever pledged
		total := decimal.Zero
		for _, w := range []struct {
			kind string
			id   int64
		}{
			{"creator", creator.id},
			{"backer", backer2.id},
		} {
			total = total.Add(decimal.RequireFromString(walletBalance(t, w.kind, w.id, "USD")))
		}

		code, body := doJSON(t, admin, http.MethodGet, fmt.Sprintf("/projects/%d/pledges", projectID), nil)
		if code != http.StatusOK {
			t.Fatalf("list pledges: want 200, got %d (%s)", code, body)
		}

		var pledgesResp []struct {
			ID        int64  `json:"id"`
			Amount    string `json:"amount"`
			Remaining string `json:"remaining"`
			Status    string `json:"status"`
		}
		if err := json.Unmarshal(body, &pledgesResp); err != nil {
			t.Fatalf("decode pledges: %v", err)
		}

		pledged := decimal.Zero
		for _, p := range pledgesResp {
			pledged = pledged.Add(decimal.RequireFromString(p.Amount))
			if p.Status == "active" {
				total = total.Add(decimal.RequireFromString(p.Remaining))
			}

			// Pledge B took no part in milestone 1's payout.
			if p.ID == pledgeBID && p.Remaining != "500.00" {
				t.Fatalf("pledge B remaining: want 500.00, got %s", p.Remaining)
			}
		}

		if !total.Equal(pledged) {
			t.Fatalf("conservation broken: wallets+remaining %s != pledged %s", total, pledged)
		}
	})

	t.Run("reconciliation_balances", func(t *testing.T) {
		code, body := doJSON(t, admin, http.MethodGet, "/reconciliation/USD", nil)
		if code != http.StatusOK {
			t.Fatalf("reconcile: want 200, got %d (%s)", code, body)
		}

		var rep struct {
			WalletTotal   string `json:"walletTotal"`
			ReleasedTotal string `json:"releasedTotal"`
			RefundedTotal string `json:"refundedTotal"`
			Balanced      bool   `json:"balanced"`
		}
		if err := json.Unmarshal(body, &rep); err != nil {
			t.Fatalf("decode report: %v", err)
		}
		if !rep.Balanced {
			t.Fatalf("report unbalanced: wallets %s, released %s, refunded %s",
				rep.WalletTotal, rep.ReleasedTotal, rep.RefundedTotal)
		}

		// A non-admin gets refused.
		code, _ = doJSON(t, backer2, http.MethodGet, "/reconciliation/USD", nil)
		if code != http.StatusForbidden {
			t.Fatalf("backer reconcile: want 403, got %d", code)
		}
	})
}

func TestE2E_AuditTrail(t *testing.T) {
	waitUntilReady(t)

	code, body := doJSON(t, admin, http.MethodGet, "/audit?entityType=milestone", nil)
	if code != http.StatusOK {
		t.Fatalf("list audit: want 200, got %d (%s)", code, body)
	}

	var facts []struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(body, &facts); err != nil {
		t.Fatalf("decode facts: %v", err)
	}

	seen := map[string]bool{}
	for _, f := range facts {
		seen[f.Action] = true
	}

	for _, action := range []string{"voting.opened", "vote.cast", "funds.released"} {
		if !seen[action] {
			t.Errorf("missing milestone audit fact %q", action)
		}
	}
}

// --- helpers ---

func waitUntilReady(t *testing.T) {
	t.Helper()

	deadline := time.Now().Add(waitReady)
	for time.Now().Before(deadline) {
		resp, err := httpClient.Get(baseURL + "/healthz")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(500 * time.Millisecond)
	}

	t.Fatalf("service not ready after %s", waitReady)
}

func doJSON(t *testing.T, a actor, method, path string, payload any) (int, []byte) {
	t.Helper()

	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, baseURL+path, reqBody)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-Id", fmt.Sprintf("%d", a.id))
	req.Header.Set("X-Actor-Role", a.role)

	resp, err := httpClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}

	return resp.StatusCode, body
}

func walletBalance(t *testing.T, kind string, ownerID int64, currency string) string {
	t.Helper()

	code, body := doJSON(t, admin, http.MethodGet,
		fmt.Sprintf("/wallets/%s/%d/%s", kind, ownerID, currency), nil)
	if code != http.StatusOK {
		t.Fatalf("get wallet: want 200, got %d (%s)", code, body)
	}

	return fieldString(t, body, "balance")
}

func fieldInt(t *testing.T, body []byte, name string) int64 {
	t.Helper()

	var m map[string]json.RawMessage
	if err := json.Unmarshal(body, &m); err != nil {
		t.Fatalf("decode body: %v (%s)", err, body)
	}

	var v int64
	if err := json.Unmarshal(m[name], &v); err != nil {
		t.Fatalf("decode field %q: %v (%s)", name, err, body)
	}

	return v
}

func fieldString(t *testing.T, body []byte, name string) string {
	t.Helper()

	var m map[string]json.RawMessage
	if err := json.Unmarshal(body, &m); err != nil {
		t.Fatalf("decode body: %v (%s)", err, body)
	}

	var v string
	if err := json.Unmarshal(m[name], &v); err != nil {
		t.Fatalf("decode field %q: %v (%s)", name, err, body)
	}

	return v
}
