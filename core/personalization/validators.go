package personalization

import (
	"fmt"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/zerlake/thesisai-philippines-sub009/core"
)

var (
	fitsGridTag  = "fitsgrid"
	fitsGridText = "widget does not fit in the grid"

	noOverlapTag  = "nooverlap"
	noOverlapText = "widget overlaps another widget"
)

// InitValidators registers the layout validations on `validate`.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	validate.RegisterStructValidation(layoutStructValidation, DashboardLayout{})
	core.RegisterCustomTranslation(validate, translator, fitsGridTag, fitsGridText)
	core.RegisterCustomTranslation(validate, translator, noOverlapTag, noOverlapText)
}

// layoutStructValidation checks that every widget lies inside the grid and that no two overlap.
func layoutStructValidation(sl validator.StructLevel) {
	layout := sl.Current().Interface().(DashboardLayout)
	for i, w := range layout.Widgets {
		field := fmt.Sprintf("widgets[%d]", i)
		if w.X+w.W > layout.GridSize.Columns || (layout.GridSize.Rows > 0 && w.Y+w.H > layout.GridSize.Rows) {
			sl.ReportError(w, field, field, fitsGridTag, "")
			continue
		}
		for _, other := range layout.Widgets[:i] {
			if overlaps(w, other) {
				sl.ReportError(w, field, field, noOverlapTag, "")
				break
			}
		}
	}
}

func overlaps(a, b WidgetPlacement) bool {
	return a.X < b.X+b.W && b.X < a.X+a.W && a.Y < b.Y+b.H && b.Y < a.Y+a.H
}
