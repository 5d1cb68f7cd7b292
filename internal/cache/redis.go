package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

func MustConnect(addr string, db int) *redis.Client {
	r := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Ping(ctx).Err(); err != nil {
		panic(err)
	}
	return r
}

// Key layout shared by the packages that talk to redis.
func SessionKey(sid string) string    { return "sess:" + sid }
func TestLockKey(testID int64) string { return "lock:test:" + strconv.FormatInt(testID, 10) }
func QuestionsKey(hash string) string { return "quiz:questions:" + hash }
