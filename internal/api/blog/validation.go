package blog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"ngeblog/internal/pkg/apperr"

	validation "github.com/go-ozzo/ozzo-validation"
)

// FlexID 兼容数字与数字字符串两种 JSON 表示。
type FlexID uint

func (id *FlexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = 0
		return nil
	}
	raw := string(data)
	if strings.HasPrefix(raw, `"`) {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			*id = 0
			return nil
		}
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %q", raw)
	}
	*id = FlexID(v)
	return nil
}

// CreateInput multipart 表单 data 字段中的 JSON。
type CreateInput struct {
	Title      string `json:"title"`
	Content    string `json:"content"`
	CategoryID FlexID `json:"categoryId"`
}

func (in CreateInput) validate() error {
	if err := validation.Validate(in.Title,
		validation.Required.Error("Title is required"),
		validation.RuneLength(0, 255).Error("Title must be at most 255 characters"),
	); err != nil {
		return apperr.Validation(err.Error())
	}
	if err := validation.Validate(in.Content,
		validation.Required.Error("Content is required"),
	); err != nil {
		return apperr.Validation(err.Error())
	}
	if err := validation.Validate(uint(in.CategoryID),
		validation.Required.Error("Category is required"),
	); err != nil {
		return apperr.Validation(err.Error())
	}
	return nil
}

// parseID 解析路径中的正整数 ID。
func parseID(raw string) (uint, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || v == 0 {
		return 0, apperr.Validation("Invalid blog id")
	}
	return uint(v), nil
}
