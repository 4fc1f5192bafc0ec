package utils

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/catalog_backend/config"
)

func GetCacheLifespan() time.Duration {
	lifespan, err := strconv.Atoi(os.Getenv("CACHE_LIFESPAN"))
	if err != nil {
		lifespan = 1
	}
	return time.Duration(lifespan) * time.Hour
}

/* Redis */

// catalog resources are cached with an expiry; everything else is
// cache-on-demand with no expiry
func typeHasExpiration(typeName string) bool {
	expirableTypes := map[string]bool{
		"Product":   true,
		"SpecKey":   true,
		"SpecValue": true,
		"SKU":       true,
	}
	return expirableTypes[typeName]
}

// store instance, obj should be a pointer
func StoreRedis[T any](obj any, id int) error {
	typeName := GetTypeName[T]()
	key := typeName + ":" + fmt.Sprint(id)

	var duration time.Duration
	if typeHasExpiration(typeName) {
		duration = GetCacheLifespan()
	}
	return config.SetRedisObject(key, &obj, duration)
}

// retrieve instance; nil result means cache miss
func RetrieveRedis[T any](id int) (*T, error) {
	key := GetTypeName[T]() + ":" + fmt.Sprint(id)

	var obj T
	exists, err := config.GetRedisObject(key, &obj)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	return &obj, nil
}

func RemoveRedis[T any](id int) error {
	key := GetTypeName[T]() + ":" + fmt.Sprint(id)
	return config.RemoveRedisKey(key)
}

// store list of a business's resources
func StoreRedisList[T any](obj any, businessId string) error {
	key := GetTypeName[T]() + "s:" + businessId
	return config.SetRedisObject(key, &obj, GetCacheLifespan())
}

// retrieve list; nil result means cache miss
func RetrieveRedisList[T any](businessId string) ([]*T, error) {
	key := GetTypeName[T]() + "s:" + businessId

	var objs []*T
	exists, err := config.GetRedisObject(key, &objs)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	return objs, nil
}

func RemoveRedisList[T any](businessId string) error {
	key := GetTypeName[T]() + "s:" + businessId
	return config.RemoveRedisKey(key)
}
