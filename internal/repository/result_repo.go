package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"codearena/internal/model"
)

type ResultRepo interface {
	SaveRaceResult(ctx context.Context, result *model.RaceResult) error
	GetRaceResult(ctx context.Context, code string) (*model.RaceResult, error)
	SaveVerdict(ctx context.Context, verdict *model.AssessmentVerdict) error
	ListVerdictsByUser(ctx context.Context, userID string) ([]model.AssessmentVerdict, error)
}

type resultRepo struct {
	races    *mongo.Collection
	verdicts *mongo.Collection
}

func NewResultRepo(db *mongo.Database) ResultRepo {
	return &resultRepo{
		races:    db.Collection("race_results"),
		verdicts: db.Collection("verdicts"),
	}
}

func (r *resultRepo) SaveRaceResult(ctx context.Context, result *model.RaceResult) error {
	if result.ID == "" {
		result.ID = primitive.NewObjectID().Hex()
	}
	_, err := r.races.InsertOne(ctx, result)
	return err
}

func (r *resultRepo) GetRaceResult(ctx context.Context, code string) (*model.RaceResult, error) {
	var result model.RaceResult
	err := r.races.FindOne(ctx, bson.M{"code": code}).Decode(&result)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (r *resultRepo) SaveVerdict(ctx context.Context, verdict *model.AssessmentVerdict) error {
	if verdict.ID == "" {
		verdict.ID = primitive.NewObjectID().Hex()
	}
	_, err := r.verdicts.InsertOne(ctx, verdict)
	return err
}

func (r *resultRepo) ListVerdictsByUser(ctx context.Context, userID string) ([]model.AssessmentVerdict, error) {
	opts := options.Find().SetSort(bson.M{"finishedAt": -1})
	cursor, err := r.verdicts.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var verdicts []model.AssessmentVerdict
	if err := cursor.All(ctx, &verdicts); err != nil {
		return nil, err
	}
	return verdicts, nil
}
