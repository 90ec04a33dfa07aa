package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"codearena/internal/config"
	"codearena/internal/model"
	"codearena/internal/repository"
)

// Seeds a demo archived race and a few verdicts so the dashboard has data
// to render on a fresh deployment.
func main() {
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer client.Disconnect(ctx)

	repo := repository.NewResultRepo(client.Database(cfg.MongoDB))

	race := &model.RaceResult{
		Code:   "DEMO42",
		Domain: "backend",
		Rankings: []model.RaceRanking{
			{Rank: 1, UserID: "u_demo1", Name: "Ada", Progress: 100},
			{Rank: 2, UserID: "u_demo2", Name: "Linus", Progress: 80},
			{Rank: 3, UserID: "u_demo3", Name: "Grace", Progress: 80},
		},
		FinishedAt: time.Now().Add(-24 * time.Hour),
	}
	if err := repo.SaveRaceResult(ctx, race); err != nil {
		log.Fatalf("Failed to seed race result: %v", err)
	}
	fmt.Printf("Seeded race result %s (%s)\n", race.ID, race.Code)

	verdicts := []*model.AssessmentVerdict{
		{
			UserID:     "u_demo1",
			Flow:       model.FlowTrial,
			Score:      82,
			Feedback:   "Solid grasp of the fundamentals.",
			FinishedAt: time.Now().Add(-48 * time.Hour),
		},
		{
			UserID:     "u_demo2",
			Flow:       model.FlowExam,
			Score:      model.VoidScore,
			Void:       true,
			Reasons:    []string{"switched tabs 4 times (limit 2)"},
			FinishedAt: time.Now().Add(-36 * time.Hour),
		},
	}
	for _, v := range verdicts {
		if err := repo.SaveVerdict(ctx, v); err != nil {
			log.Fatalf("Failed to seed verdict: %v", err)
		}
		fmt.Printf("Seeded verdict %s for %s\n", v.ID, v.UserID)
	}

	fmt.Println("Done")
}
