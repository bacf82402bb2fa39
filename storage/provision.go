package storage

import (
	"context"
	"errors"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
)

const queueAlreadyExists = "QueueAlreadyExists"

// CreateTable creates the named table. An existing table is not an error.
func CreateTable(ctx context.Context, connStr, name string) error {
	svc, err := newTablesService(connStr)
	if err != nil {
		return err
	}
	_, err = svc.NewClient(name).CreateTable(ctx, nil)
	if alreadyExists(err, string(aztables.TableAlreadyExists)) {
		return nil
	}
	return err
}

// CreateQueue creates the named queue. An existing queue is not an error.
func CreateQueue(ctx context.Context, connStr, name string) error {
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, name, nil)
	if err != nil {
		return err
	}
	_, err = q.Create(ctx, nil)
	if alreadyExists(err, queueAlreadyExists) {
		return nil
	}
	return err
}

func alreadyExists(err error, code string) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.ErrorCode == code
}
