package main

import (
	"context"
	"fmt"

	"github.com/eti-roma/verte-culture-connect-sub000/internal/models"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/repositories"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var seedDiseases = []models.DiseasePest{
	{
		Name:       "Moisissure blanche",
		Type:       "disease",
		Symptoms:   "Duvet blanc sur les graines et les racines, odeur de moisi",
		Treatment:  "Retirer les plateaux atteints et rincer à l'eau oxygénée diluée",
		Prevention: "Désinfecter les graines avant trempage et ventiler la salle",
		Severity:   "high",
	},
	{
		Name:       "Pourriture des racines",
		Type:       "disease",
		Symptoms:   "Racines brunes et molles, croissance ralentie",
		Treatment:  "Réduire l'arrosage et baisser la température de l'eau",
		Prevention: "Garder l'eau sous 22 °C et éviter la stagnation",
		Severity:   "medium",
	},
	{
		Name:       "Moucherons des terreaux",
		Type:       "pest",
		Symptoms:   "Petites mouches noires autour des plateaux",
		Treatment:  "Pièges jaunes englués",
		Prevention: "Limiter l'humidité stagnante",
		Severity:   "low",
	},
}

var seedTraining = []models.TrainingModule{
	{Title: "Démarrer une culture de fourrage hydroponique", Description: "Matériel, choix des graines et premier cycle", Level: "beginner", DurationMinutes: 30, OrderIndex: 1},
	{Title: "Maîtriser l'eau et le climat", Description: "pH, température, humidité et éclairage", Level: "intermediate", DurationMinutes: 45, OrderIndex: 2},
	{Title: "Prévenir les maladies", Description: "Hygiène, désinfection et détection précoce", Level: "intermediate", DurationMinutes: 40, OrderIndex: 3},
}

// seedCatalog inserts the reference rows missing from db and returns how many it added.
func seedCatalog(ctx context.Context, db *gorm.DB, logger *zap.Logger) (int, error) {
	diseases, err := seedTable(ctx, repositories.NewGORMTable[models.DiseasePest](db), seedDiseases,
		func(d models.DiseasePest) string { return d.Name }, "name")
	if err != nil {
		return 0, err
	}
	modules, err := seedTable(ctx, repositories.NewGORMTable[models.TrainingModule](db), seedTraining,
		func(m models.TrainingModule) string { return m.Title }, "title")
	if err != nil {
		return diseases, err
	}
	logger.Info("catalog seeded", zap.Int("diseases_pests", diseases), zap.Int("training_modules", modules))
	return diseases + modules, nil
}

func seedTable[T any](ctx context.Context, table repositories.Table[T], rows []T, key func(T) string, column string) (int, error) {
	added := 0
	for i := range rows {
		row := rows[i]
		existing, err := table.List(ctx, repositories.Query{Filters: map[string]any{column: key(row)}, Limit: 1})
		if err != nil {
			return added, fmt.Errorf("failed to look up %q: %w", key(row), err)
		}
		if len(existing) > 0 {
			continue
		}
		if err := table.Insert(ctx, &row); err != nil {
			return added, fmt.Errorf("failed to seed %q: %w", key(row), err)
		}
		added++
	}
	return added, nil
}
