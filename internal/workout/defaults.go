package workout

import (
	"context"
	"errors"
	"time"

	"github.com/mesh-intelligence/liftsync/internal/integrity"
	"github.com/mesh-intelligence/liftsync/pkg/types"
)

// defaultExercise describes a built-in exercise.
type defaultExercise struct {
	name     string
	category string
	muscles  string
}

// defaultExercises is the built-in catalog, matched against stored
// exercises by normalized name.
var defaultExercises = []defaultExercise{
	{"ベンチプレス", "胸", "大胸筋、三角筋前部、上腕三頭筋"},
	{"インクラインベンチプレス", "胸", "大胸筋上部、三角筋前部"},
	{"スクワット", "脚", "大腿四頭筋、大臀筋、ハムストリング"},
	{"デッドリフト", "背中", "脊柱起立筋、広背筋、僧帽筋、大臀筋"},
	{"ショルダープレス", "肩", "三角筋、上腕三頭筋"},
	{"バーベルロー", "背中", "広背筋、僧帽筋、リアデルト"},
	{"プルアップ", "背中", "広背筋、上腕二頭筋"},
	{"ディップス", "胸", "大胸筋下部、上腕三頭筋"},
	{"バーベルカール", "腕", "上腕二頭筋"},
	{"トライセップスエクステンション", "腕", "上腕三頭筋"},
	{"ランジ", "脚", "大腿四頭筋、ハムストリング、大臀筋"},
	{"レッグプレス", "脚", "大腿四頭筋、大臀筋"},
	{"ラットプルダウン", "背中", "広背筋、上腕二頭筋"},
	{"ケーブルフライ", "胸", "大胸筋"},
	{"サイドレイズ", "肩", "三角筋中部"},
	{"フェイスプル", "肩", "三角筋後部、僧帽筋"},
	{"プランク", "体幹", "腹直筋、腹横筋、背筋群"},
	{"ヒップスラスト", "脚", "大臀筋、ハムストリング"},
}

// DefaultExerciseNames returns the names of the built-in exercises in
// catalog order.
func DefaultExerciseNames() []string {
	names := make([]string, len(defaultExercises))
	for i, d := range defaultExercises {
		names[i] = d.name
	}
	return names
}

// SeedDefaults creates the preferences singleton when missing, upserts the
// built-in exercises by name and removes duplicate built-ins. It does not
// commit. Its signature matches integrity.ReseedFunc.
func SeedDefaults(_ context.Context, scope types.Scope) error {
	return seed(scope, time.Now().UTC())
}

func seed(scope types.Scope, now time.Time) error {
	if _, err := scope.Preferences().Current(); errors.Is(err, types.ErrNotFound) {
		p := types.DefaultPreferences()
		p.CreatedAt, p.UpdatedAt = now, now
		if err := scope.Preferences().Create(p); err != nil && !errors.Is(err, types.ErrPreferencesExist) {
			return err
		}
	} else if err != nil {
		return err
	}

	for _, d := range defaultExercises {
		key := types.NormalizeName(d.name)
		found, err := scope.Exercises().Fetch(types.ExerciseFilter{NameKey: &key, Order: types.OrderCreatedAsc, Limit: 1})
		if err != nil {
			return err
		}
		if len(found) == 0 {
			e := &types.Exercise{
				Name:         d.name,
				Category:     d.category,
				MuscleGroups: d.muscles,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := scope.Exercises().Create(e); err != nil {
				return err
			}
			continue
		}
		existing := found[0]
		if existing.Name == d.name && existing.Category == d.category &&
			existing.MuscleGroups == d.muscles && !existing.IsCustom {
			continue
		}
		if _, err := scope.Exercises().Update(existing.RowID, func(e *types.Exercise) {
			e.Name = d.name
			e.Category = d.category
			e.MuscleGroups = d.muscles
			e.IsCustom = false
			e.UpdatedAt = now
		}); err != nil {
			return err
		}
	}

	_, err := integrity.RemoveDuplicateDefaultExercises(scope)
	return err
}
