package persistence

import (
	"testing"
)

type sampleState struct {
	Name  string  `json:"name"`
	Count int     `json:"count"`
	Value float64 `json:"value"`
}

// TestSaveLoad 测试保存后能原样加载
func TestSaveLoad(t *testing.T) {
	svc := NewJSONFileService(t.TempDir())
	store := svc.NewStore("snapshot", "positions", "view")

	in := sampleState{Name: "s1", Count: 3, Value: 1.25}
	if err := store.Save(in); err != nil {
		t.Fatalf("保存失败: %v", err)
	}

	var out sampleState
	if err := store.Load(&out); err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	if out != in {
		t.Errorf("加载结果不一致: got %+v, want %+v", out, in)
	}
}

// TestLoadNotExists 不存在的 key 返回 ErrNotExists
func TestLoadNotExists(t *testing.T) {
	svc := NewJSONFileService(t.TempDir())
	store := svc.NewStore("snapshot", "orders", "view")

	var out sampleState
	if err := store.Load(&out); err != ErrNotExists {
		t.Errorf("期望 ErrNotExists，得到 %v", err)
	}
}

// TestKeySanitize 非法字符的 key 不应该导致保存失败
func TestKeySanitize(t *testing.T) {
	svc := NewJSONFileService(t.TempDir())
	store := svc.NewStore("snapshot", "B-RIVER/USDT", "order:book")

	if err := store.Save(sampleState{Name: "book"}); err != nil {
		t.Fatalf("保存失败: %v", err)
	}
	var out sampleState
	if err := store.Load(&out); err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	if out.Name != "book" {
		t.Errorf("期望 name=book，得到 %s", out.Name)
	}
}
