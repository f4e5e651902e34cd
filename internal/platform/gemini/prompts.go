package gemini

const mealPromptTemplate = `You are a nutrition coach reviewing a photo of a single meal.
Identify each food item, estimate its portion in grams and its calories,
estimate total protein, carbohydrate and fat in grams, and rate the meal's
nutritional balance from 0 to 100.
{{- if .Description}}
The user described the meal as: {{.Description}}
{{- end}}
Respond only with JSON of the form:
{"items":[{"name":"","portion_grams":0,"calories":0}],"protein_g":0,"carbs_g":0,"fat_g":0,"score":0,"suggestions":[""]}`

const weekPromptTemplate = `You are a nutrition coach summarizing the week starting {{.WeekStart}}.
The average meal score was {{printf "%.1f" .AverageScore}}. The meals were:
{{- range .Meals}}
- {{printf "%.0f" .TotalCalories}} kcal, score {{.Score}}, protein {{printf "%.0f" .Macros.ProteinGrams}}g, carbs {{printf "%.0f" .Macros.CarbsGrams}}g, fat {{printf "%.0f" .Macros.FatGrams}}g
{{- end}}
Give up to three highlights and up to three concrete recommendations.
Respond only with JSON of the form:
{"highlights":[""],"recommendations":[""]}`
