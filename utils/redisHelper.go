package utils

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"

	"bitbucket.org/stitchfocus/garments_backend/config"
)

func GetCacheLifespan() time.Duration {
	lifespan, err := strconv.Atoi(os.Getenv("CACHE_LIFESPAN"))
	if err != nil {
		lifespan = 1
	}
	return time.Duration(lifespan) * time.Hour
}

func GetTypeName[T any]() string {
	var v T
	return reflect.TypeOf(v).Name()
}

/* Redis model cache: keys are "<TypeName>:<id>" and "<TypeName>s:<businessId>" */

func RetrieveRedis[T any](id int) (*T, error) {
	key := fmt.Sprintf("%s:%d", GetTypeName[T](), id)
	var result T
	exists, err := config.GetRedisObject(key, &result)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	return &result, nil
}

func StoreRedis[T any](obj *T, id int) error {
	key := fmt.Sprintf("%s:%d", GetTypeName[T](), id)
	return config.SetRedisObject(key, obj, GetCacheLifespan())
}

func RemoveRedis[T any](id int) error {
	key := fmt.Sprintf("%s:%d", GetTypeName[T](), id)
	return config.RemoveRedisKey(key)
}

func RetrieveRedisList[T any](businessId string) ([]*T, error) {
	key := fmt.Sprintf("%ss:%s", GetTypeName[T](), businessId)
	var results []*T
	exists, err := config.GetRedisObject(key, &results)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	return results, nil
}

func StoreRedisList[T any](objs []*T, businessId string) error {
	key := fmt.Sprintf("%ss:%s", GetTypeName[T](), businessId)
	return config.SetRedisObject(key, &objs, GetCacheLifespan())
}

func RemoveRedisList[T any](businessId string) error {
	key := fmt.Sprintf("%ss:%s", GetTypeName[T](), businessId)
	return config.RemoveRedisKey(key)
}
