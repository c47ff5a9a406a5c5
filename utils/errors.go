package utils

import "fmt"

// BatchSizeError 查询函数返回的结果数与批次大小不一致
type BatchSizeError struct {
	Offset int
	Want   int
	Got    int
}

func (e *BatchSizeError) Error() string {
	return fmt.Sprintf("batch at offset %d returned %d results, want %d", e.Offset, e.Got, e.Want)
}
