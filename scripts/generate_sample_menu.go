//go:build ignore

package main

import (
	"compress/gzip"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// Writes the sample menu read by the order service when MENU_ENABLED=true.
// Upload the same file to <bucket>/<prefix>menu.gz for the S3 source.
//
//	go run scripts/generate_sample_menu.go [output]
func main() {
	output := "data/menu/menu.gz"
	if len(os.Args) > 1 {
		output = os.Args[1]
	}

	if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
		log.Fatalf("Failed to create directory: %v", err)
	}

	dishes := []string{
		// Starters
		"Bruschetta",
		"Burrata",
		"Calamari Fritti",
		"Minestrone",
		// Mains
		"Margherita",
		"Diavola",
		"Quattro Formaggi",
		"Spaghetti Carbonara",
		"Penne Arrabbiata",
		"Lasagne",
		"Risotto ai Funghi",
		"Saltimbocca",
		// Desserts
		"Tiramisu",
		"Panna Cotta",
		"Affogato",
		// Drinks
		"Espresso",
		"San Pellegrino",
		"House Red",
		"House White",
	}

	if err := createMenuFile(output, dishes); err != nil {
		log.Fatalf("Failed to create %s: %v", output, err)
	}

	fmt.Printf("Created %s with %d dishes\n", output, len(dishes))
}

func createMenuFile(filePath string, dishes []string) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	gzipWriter := gzip.NewWriter(file)
	defer gzipWriter.Close()

	for _, dish := range dishes {
		if _, err := fmt.Fprintf(gzipWriter, "%s\n", dish); err != nil {
			return fmt.Errorf("failed to write dish: %w", err)
		}
	}

	return nil
}
