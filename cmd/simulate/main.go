package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
)

// simulate hammers one (medecin, date, creneau) tuple with concurrent
// anonymous bookings. Exactly one request must win; everyone else gets a
// slot_conflict, and the slot must disappear from the disponibilite query.
type SimConfig struct {
	APIBaseURL string
	MedecinID  string
	Date       string
	Creneau    string
	Workers    int
}

func loadSimConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL: getEnv("API_BASE_URL", "http://127.0.0.1:8080"),
		MedecinID:  os.Getenv("SIM_MEDECIN_ID"),
		Date:       getEnv("SIM_DATE", time.Now().AddDate(0, 0, 1).Format("2006-01-02")),
		Creneau:    getEnv("SIM_CRENEAU", "09:00"),
		Workers:    getInt("SIM_WORKERS", 20),
	}
	if cfg.MedecinID == "" {
		log.Fatal("SIM_MEDECIN_ID is required (try a row from the medecins table)")
	}
	return cfg
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	cfg := loadSimConfig()
	gofakeit.Seed(time.Now().UnixNano())

	log.Printf("racing %d workers for medecin=%s date=%s creneau=%s",
		cfg.Workers, cfg.MedecinID, cfg.Date, cfg.Creneau)

	client := &http.Client{Timeout: 10 * time.Second}

	var created, conflicts, other atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()

			status, body := submitBooking(client, cfg, worker)
			switch status {
			case http.StatusCreated:
				created.Add(1)
				log.Printf("worker %d WON: %s", worker, body)
			case http.StatusConflict:
				conflicts.Add(1)
			default:
				other.Add(1)
				log.Printf("worker %d unexpected status %d: %s", worker, status, body)
			}
		}(i)
	}
	wg.Wait()

	log.Printf("result: created=%d conflicts=%d other=%d", created.Load(), conflicts.Load(), other.Load())
	if created.Load() != 1 {
		log.Printf("WARNING: expected exactly one winner")
	}

	checkSlotGone(client, cfg)
}

func submitBooking(client *http.Client, cfg SimConfig, worker int) (int, string) {
	payload := map[string]any{
		"intent_id":  uuid.NewString(),
		"medecin_id": cfg.MedecinID,
		"date_rdv":   cfg.Date,
		"heure_rdv":  cfg.Creneau,
		"motif":      "Simulation",
		"inscription": map[string]any{
			"nom":      gofakeit.LastName(),
			"prenom":   gofakeit.FirstName(),
			"email":    fmt.Sprintf("sim-%d-%s@example.test", worker, uuid.NewString()[:8]),
			"password": "motdepasse-sim",
		},
	}

	raw, _ := json.Marshal(payload)
	resp, err := client.Post(cfg.APIBaseURL+"/patient/rendezvous", "application/json", bytes.NewReader(raw))
	if err != nil {
		return 0, err.Error()
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func checkSlotGone(client *http.Client, cfg SimConfig) {
	url := fmt.Sprintf("%s/public/medecins/%s/disponibilite?date=%s", cfg.APIBaseURL, cfg.MedecinID, cfg.Date)
	resp, err := client.Get(url)
	if err != nil {
		log.Printf("disponibilite check failed: %v", err)
		return
	}
	defer resp.Body.Close()

	var out struct {
		Creneaux []string `json:"creneaux_disponibles"`
		Degrade  bool     `json:"degrade"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		log.Printf("decode disponibilite: %v", err)
		return
	}

	for _, c := range out.Creneaux {
		if c == cfg.Creneau {
			log.Printf("WARNING: creneau %s still listed as available (degrade=%v)", cfg.Creneau, out.Degrade)
			return
		}
	}
	log.Printf("creneau %s no longer available, as expected", cfg.Creneau)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
