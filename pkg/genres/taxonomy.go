package genres

// taxonomy is the built-in FB2 genre classification installed by Seed.
var taxonomy = []struct {
	code       string
	subsection string
	section    string
}{
	{"sf_history", "Альтернативная история", "Фантастика"},
	{"sf_action", "Боевая фантастика", "Фантастика"},
	{"sf_epic", "Эпическая фантастика", "Фантастика"},
	{"sf_heroic", "Героическая фантастика", "Фантастика"},
	{"sf_detective", "Детективная фантастика", "Фантастика"},
	{"sf_cyberpunk", "Киберпанк", "Фантастика"},
	{"sf_space", "Космическая фантастика", "Фантастика"},
	{"sf_social", "Социально психологическая фантастика", "Фантастика"},
	{"sf_horror", "Ужасы и Мистика", "Фантастика"},
	{"sf_humor", "Юмористическая фантастика", "Фантастика"},
	{"sf_fantasy", "Фэнтези", "Фантастика"},
	{"sf", "Научная Фантастика", "Фантастика"},
	{"det_classic", "Классический детектив", "Детективы и Триллеры"},
	{"det_police", "Полицейский детектив", "Детективы и Триллеры"},
	{"det_action", "Боевик", "Детективы и Триллеры"},
	{"det_irony", "Иронический детектив", "Детективы и Триллеры"},
	{"det_history", "Исторический детектив", "Детективы и Триллеры"},
	{"det_espionage", "Шпионский детектив", "Детективы и Триллеры"},
	{"det_crime", "Криминальный детектив", "Детективы и Триллеры"},
	{"det_political", "Политический детектив", "Детективы и Триллеры"},
	{"det_maniac", "Маньяки", "Детективы и Триллеры"},
	{"det_hard", "Крутой детектив", "Детективы и Триллеры"},
	{"thriller", "Триллер", "Детективы и Триллеры"},
	{"detective", "Детектив (не относящийся в прочие категории).", "Детективы и Триллеры"},
	{"prose_classic", "Классическая проза", "Проза"},
	{"prose_history", "Историческая проза", "Проза"},
	{"prose_contemporary", "Современная проза", "Проза"},
	{"prose_counter", "Контркультура", "Проза"},
	{"prose_rus_classic", "Русская классическая проза", "Проза"},
	{"prose_su_classics", "Советская классическая проза", "Проза"},
	{"love_contemporary", "Современные любовные романы", "Любовные романы"},
	{"love_history", "Исторические любовные романы", "Любовные романы"},
	{"love_detective", "Остросюжетные любовные романы", "Любовные романы"},
	{"love_short", "Короткие любовные романы", "Любовные романы"},
	{"love_erotica", "Эротика", "Любовные романы"},
	{"adv_western", "Вестерн", "Приключения"},
	{"adv_history", "Исторические приключения", "Приключения"},
	{"adv_indian", "Приключения про индейцев", "Приключения"},
	{"adv_maritime", "Морские приключения", "Приключения"},
	{"adv_geo", "Путешествия и география", "Приключения"},
	{"adv_animal", "Природа и животные", "Приключения"},
	{"adventure", "Прочие приключения", "Приключения"},
	{"child_tale", "Сказка", "Детская литература"},
	{"child_verse", "Детские стихи", "Детская литература"},
	{"child_prose", "Детскиая проза", "Детская литература"},
	{"child_sf", "Детская фантастика", "Детская литература"},
	{"child_det", "Детские остросюжетные", "Детская литература"},
	{"child_adv", "Детские приключения", "Детская литература"},
	{"child_education", "Детская образовательная литература", "Детская литература"},
	{"children", "Прочая детская литература", "Детская литература"},
	{"poetry", "Поэзия", "Поэзия, Драматургия"},
	{"dramaturgy", "Драматургия", "Поэзия, Драматургия"},
	{"antique_ant", "Античная литература", "Старинное"},
	{"antique_european", "Европейская старинная литература", "Старинное"},
	{"antique_russian", "Древнерусская литература", "Старинное"},
	{"antique_east", "Древневосточная литература", "Старинное"},
	{"antique_myths", "Мифы. Легенды. Эпос", "Старинное"},
	{"antique", "Прочая старинная литература", "Старинное"},
	{"sci_history", "История", "Наука, Образование"},
	{"sci_psychology", "Психология", "Наука, Образование"},
	{"sci_culture", "Культурология", "Наука, Образование"},
	{"sci_religion", "Религиоведение", "Наука, Образование"},
	{"sci_philosophy", "Философия", "Наука, Образование"},
	{"sci_politics", "Политика", "Наука, Образование"},
	{"sci_business", "Деловая литература", "Наука, Образование"},
	{"sci_juris", "Юриспруденция", "Наука, Образование"},
	{"sci_linguistic", "Языкознание", "Наука, Образование"},
	{"sci_medicine", "Медицина", "Наука, Образование"},
	{"sci_phys", "Физика", "Наука, Образование"},
	{"sci_math", "Математика", "Наука, Образование"},
	{"sci_chem", "Химия", "Наука, Образование"},
	{"sci_biology", "Биология", "Наука, Образование"},
	{"sci_tech", "Технические науки", "Наука, Образование"},
	{"science", "Прочая научная литература", "Наука, Образование"},
	{"comp_www", "Интернет", "Компьютеры и Интернет"},
	{"comp_programming", "Программирование", "Компьютеры и Интернет"},
	{"comp_hard", "Компьютерное железо", "Компьютеры и Интернет"},
	{"comp_soft", "Программы", "Компьютеры и Интернет"},
	{"comp_db", "Базы данных", "Компьютеры и Интернет"},
	{"comp_osnet", "ОС и Сети", "Компьютеры и Интернет"},
	{"computers", "Прочая околокомпьтерная литература", "Компьютеры и Интернет"},
	{"ref_encyc", "Энциклопедии", "Справочная литература"},
	{"ref_dict", "Словари", "Справочная литература"},
	{"ref_ref", "Справочники", "Справочная литература"},
	{"ref_guide", "Руководства", "Справочная литература"},
	{"reference", "Прочая справочная литература", "Справочная литература"},
	{"nonf_biography", "Биографии и Мемуары", "Документальная литература"},
	{"nonf_publicism", "Публицистика", "Документальная литература"},
	{"nonf_criticism", "Критика", "Документальная литература"},
	{"design", "Искусство и Дизайн", "Документальная литература"},
	{"nonfiction", "Прочая документальная литература", "Документальная литература"},
	{"religion_rel", "Религия", "Религия и духовность"},
	{"religion_esoterics", "Эзотерика", "Религия и духовность"},
	{"religion_self", "Самосовершенствование", "Религия и духовность"},
	{"religion", "Прочая религионая литература", "Религия и духовность"},
	{"humor_anecdote", "Анекдоты", "Юмор"},
	{"humor_prose", "Юмористическая проза", "Юмор"},
	{"humor_verse", "Юмористические стихи", "Юмор"},
	{"humor", "Прочий юмор", "Юмор"},
	{"home_cooking", "Кулинария", "Дом и семья"},
	{"home_pets", "Домашние животные", "Дом и семья"},
	{"home_crafts", "Хобби и ремесла", "Дом и семья"},
	{"home_entertain", "Развлечения", "Дом и семья"},
	{"home_health", "Здоровье", "Дом и семья"},
	{"home_garden", "Сад и огород", "Дом и семья"},
	{"home_diy", "Сделай сам", "Дом и семья"},
	{"home_sport", "Спорт", "Дом и семья"},
	{"home_sex", "Эротика, Секс", "Дом и семья"},
	{"home", "Прочее домоводство", "Дом и семья"},
}
