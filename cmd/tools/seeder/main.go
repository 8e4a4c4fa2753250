package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/lib/pq"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	seedSalespeople(db)
	seedProducts(db)
	seedCustomers(db)
	seedWebhookEndpoints(db)

	log.Println("Seeding completed successfully!")
}

func seedSalespeople(db *sql.DB) {
	people := []struct {
		Name  string
		Phone string
	}{
		{"Asha Mondal", "9830011001"},
		{"Ravi Shaw", "9830011002"},
		{"Priya Dutta", "9830011003"},
		{"Sunil Ghosh", "9830011004"},
	}

	fmt.Println("Seeding Salespeople...")
	for _, p := range people {
		_, err := db.Exec(`
			INSERT INTO salespeople (name, phone)
			SELECT $1, $2
			WHERE NOT EXISTS (SELECT 1 FROM salespeople WHERE name = $1);
		`, p.Name, p.Phone)
		if err != nil {
			log.Printf("Failed to seed salesperson %s: %v", p.Name, err)
		}
	}
}

func seedProducts(db *sql.DB) {
	// Prices are paise, discounts and tax rates basis points.
	products := []struct {
		Name        string
		HSN         string
		ListPrice   int64
		DiscountBps int32
		TaxRateBps  int32
		Stock       int32
		MinStock    int32
		Unit        string
		BatchNo     string
		Expiry      string
	}{
		{"Chyawanprash 500g", "30049011", 42500, 5500, 500, 120, 10, "pcs", "CH2504", "2027-03-31"},
		{"Ashwagandha Tablets 60s", "30049011", 28000, 5500, 500, 200, 15, "pcs", "AW2511", "2027-06-30"},
		{"Triphala Churna 100g", "30049011", 12000, 5000, 500, 150, 10, "pcs", "TR2507", "2026-12-31"},
		{"Brahmi Ghrita 200ml", "30049011", 36500, 5500, 500, 60, 5, "btl", "BG2502", "2026-09-30"},
		{"Amla Juice 1L", "20098990", 22000, 4000, 1200, 90, 8, "btl", "AJ2509", "2026-03-31"},
		{"Neem Soap 75g", "34011190", 4500, 3000, 1800, 400, 25, "pcs", "NS2512", "2028-01-31"},
		{"Pain Relief Balm 50g", "30049011", 9500, 5000, 500, 250, 20, "pcs", "PB2506", "2027-08-31"},
		{"Herbal Tea 250g", "09022020", 18000, 4500, 500, 80, 10, "pkt", "HT2503", "2026-06-30"},
		{"Rose Water 100ml", "33030010", 6500, 3500, 1800, 180, 15, "btl", "RW2508", "2027-02-28"},
		{"Honey 500g", "04090000", 32000, 4000, 0, 70, 6, "jar", "HN2510", "2027-12-31"},
	}

	fmt.Println("Seeding Products...")
	for _, p := range products {
		_, err := db.Exec(`
			INSERT INTO products (name, hsn_code, list_price, default_discount_bps, tax_rate_bps,
				current_stock, min_stock, unit, batch_no, expiry_date)
			SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10::date
			WHERE NOT EXISTS (SELECT 1 FROM products WHERE name = $1);
		`, p.Name, p.HSN, p.ListPrice, p.DiscountBps, p.TaxRateBps, p.Stock, p.MinStock, p.Unit, p.BatchNo, p.Expiry)
		if err != nil {
			log.Printf("Failed to seed product %s: %v", p.Name, err)
		}
	}
}

func seedWebhookEndpoints(db *sql.DB) {
	endpoints := []struct {
		Name   string
		URL    string
		Secret string
		Topics []string
	}{
		{"demo-receiver", "http://localhost:9090/hooks/billing", "demo-webhook-secret", []string{"billing.invoice.committed", "billing.stock.low", "billing.stock.adjusted"}},
	}

	fmt.Println("Seeding Webhook Endpoints...")
	for _, e := range endpoints {
		_, err := db.Exec(`
			INSERT INTO webhook_endpoints (name, url, secret, topics)
			SELECT $1, $2, $3, $4
			WHERE NOT EXISTS (SELECT 1 FROM webhook_endpoints WHERE name = $1);
		`, e.Name, e.URL, e.Secret, pq.Array(e.Topics))
		if err != nil {
			log.Printf("Failed to seed webhook endpoint %s: %v", e.Name, err)
		}
	}
}

func seedCustomers(db *sql.DB) {
	customers := []struct {
		Name    string
		Phone   string
		Address string
		GSTIN   string
	}{
		{"Sharma Stores", "9830022001", "12 Bidhan Sarani, Kolkata", "19AABCS1234F1Z5"},
		{"Mitra Medicals", "9830022002", "45 Rashbehari Avenue, Kolkata", "19AABCM5678K1Z2"},
		{"Das Traders", "9830022003", "8 GT Road, Howrah", ""},
		{"Rina Sen", "9830022004", "", ""},
	}

	fmt.Println("Seeding Customers...")
	for _, c := range customers {
		_, err := db.Exec(`
			INSERT INTO customers (name, phone, address, gstin)
			VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''))
			ON CONFLICT (phone) WHERE phone IS NOT NULL DO NOTHING;
		`, c.Name, c.Phone, c.Address, c.GSTIN)
		if err != nil {
			log.Printf("Failed to seed customer %s: %v", c.Name, err)
		}
	}
}
