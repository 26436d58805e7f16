package grant

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/d9705996/granthub/internal/model"
	"gorm.io/gorm"
)

const referenceAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// generateReference returns a candidate reference of the form
// GA-<year>-<6 random characters from 0-9A-Z>.
func generateReference(year int) (string, error) {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate reference: %w", err)
	}
	for i := range b {
		b[i] = referenceAlphabet[int(b[i])%len(referenceAlphabet)]
	}
	return fmt.Sprintf("GA-%d-%s", year, string(b)), nil
}

// assignReference generates candidates until one is free of collisions.
// Collisions are vanishingly rare (36^6 per year) so the retry cap exists
// only to guarantee termination.
func assignReference(tx *gorm.DB, year int) (string, error) {
	for range 10 {
		ref, err := generateReference(year)
		if err != nil {
			return "", err
		}
		var count int64
		if err := tx.Model(&model.GrantApplication{}).
			Where("reference_number = ?", ref).
			Count(&count).Error; err != nil {
			return "", fmt.Errorf("check reference uniqueness: %w", err)
		}
		if count == 0 {
			return ref, nil
		}
	}
	return "", errors.New("could not generate a unique reference number")
}
