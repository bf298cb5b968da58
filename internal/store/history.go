package store

import (
	"database/sql"
	"encoding/json"
	"strings"

	_ "github.com/glebarez/go-sqlite"
)

// HistoryStore keeps past meal plans and user settings. Past shopping
// lists feed the extractor prompt so generic items resolve to the brands
// the user actually buys.
type HistoryStore struct {
	DB *sql.DB
}

func NewHistoryStore(dbPath string) (*HistoryStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Create tables if not exist
	queries := []string{
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS meal_plans (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			date DATETIME DEFAULT CURRENT_TIMESTAMP,
			prompt TEXT,
			plan_json TEXT,
			shopping_list TEXT
		);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return nil, err
		}
	}

	return &HistoryStore{DB: db}, nil
}

func (h *HistoryStore) SaveSetting(key, value string) error {
	query := `REPLACE INTO settings (key, value) VALUES (?, ?)`
	_, err := h.DB.Exec(query, key, value)
	return err
}

func (h *HistoryStore) GetSetting(key, fallback string) string {
	query := `SELECT value FROM settings WHERE key = ?`
	var value string
	if err := h.DB.QueryRow(query, key).Scan(&value); err != nil {
		return fallback
	}
	return value
}

// SavePlan records a generated plan and its extracted shopping list.
func (h *HistoryStore) SavePlan(prompt, planJSON string, shoppingList []string) error {
	listJSON, err := json.Marshal(shoppingList)
	if err != nil {
		return err
	}
	query := `INSERT INTO meal_plans (prompt, plan_json, shopping_list) VALUES (?, ?, ?)`
	_, err = h.DB.Exec(query, prompt, planJSON, string(listJSON))
	return err
}

// PlanSummary is one saved meal plan.
type PlanSummary struct {
	ID           int
	Date         string
	Prompt       string
	PlanJSON     string
	ShoppingList []string
}

func (h *HistoryStore) RecentPlans(limit int) ([]PlanSummary, error) {
	query := `SELECT id, date, prompt, plan_json, shopping_list
		FROM meal_plans ORDER BY id DESC LIMIT ?`
	rows, err := h.DB.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []PlanSummary
	for rows.Next() {
		var p PlanSummary
		var listJSON string
		if err := rows.Scan(&p.ID, &p.Date, &p.Prompt, &p.PlanJSON, &listJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(listJSON), &p.ShoppingList); err != nil {
			p.ShoppingList = nil
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

// AllPastItems returns every distinct item from past shopping lists as a
// comma-separated string for prompt interpolation.
func (h *HistoryStore) AllPastItems() (string, error) {
	query := `SELECT shopping_list FROM meal_plans`
	rows, err := h.DB.Query(query)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	seen := make(map[string]bool)
	var items []string
	for rows.Next() {
		var listJSON string
		if err := rows.Scan(&listJSON); err != nil {
			return "", err
		}
		var list []string
		if err := json.Unmarshal([]byte(listJSON), &list); err != nil {
			continue
		}
		for _, item := range list {
			item = strings.TrimSpace(item)
			if item == "" || seen[item] {
				continue
			}
			seen[item] = true
			items = append(items, item)
		}
	}
	return strings.Join(items, ", "), rows.Err()
}

func (h *HistoryStore) DeleteAllPlans() error {
	_, err := h.DB.Exec(`DELETE FROM meal_plans`)
	return err
}
