package db

import "testing"

func TestPostgresDSN(t *testing.T) {
	cfg := DefaultConfig()
	want := "host=localhost port=5432 user=postgres password=admin dbname=reports sslmode=disable"
	if got := cfg.PostgresDSN(); got != want {
		t.Fatalf("PostgresDSN() = %q, want %q", got, want)
	}
}

func TestMySQLDSN(t *testing.T) {
	cfg := Config{Host: "db", Port: 3306, User: "app", Password: "secret", DBName: "reports"}
	want := "app:secret@tcp(db:3306)/reports?charset=utf8mb4&parseTime=true&loc=UTC"
	if got := cfg.MySQLDSN(); got != want {
		t.Fatalf("MySQLDSN() = %q, want %q", got, want)
	}
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	if len(entries) < 2 {
		t.Fatalf("expected up and down migrations, got %d files", len(entries))
	}
}
