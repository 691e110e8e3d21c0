package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// normalizePage clamps page to >= 1 and pageSize to [1, maxPageSize]
func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

// pagePipeline counts and pages the documents matching filter in one round trip
func pagePipeline(filter bson.M, sortField string, page, pageSize int) mongo.Pipeline {
	skip := (page - 1) * pageSize
	return mongo.Pipeline{
		{{Key: "$match", Value: filter}},
		{{Key: "$facet", Value: bson.M{
			"metadata": bson.A{bson.M{"$count": "total"}},
			"data": bson.A{
				bson.M{"$sort": bson.D{{Key: sortField, Value: -1}, {Key: "_id", Value: -1}}},
				bson.M{"$skip": skip},
				bson.M{"$limit": pageSize},
			},
		}}},
	}
}

// findPage runs pagePipeline against coll and decodes the page into T
func findPage[T any](ctx context.Context, coll *mongo.Collection, filter bson.M, sortField string, page, pageSize int) ([]*T, int64, error) {
	page, pageSize = normalizePage(page, pageSize)

	cursor, err := coll.Aggregate(ctx, pagePipeline(filter, sortField, page, pageSize))
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var results []struct {
		Metadata []struct {
			Total int64 `bson:"total"`
		} `bson:"metadata"`
		Data []*T `bson:"data"`
	}
	if err = cursor.All(ctx, &results); err != nil {
		return nil, 0, err
	}

	if len(results) == 0 || len(results[0].Data) == 0 {
		return []*T{}, 0, nil
	}

	total := int64(0)
	if len(results[0].Metadata) > 0 {
		total = results[0].Metadata[0].Total
	}
	return results[0].Data, total, nil
}
