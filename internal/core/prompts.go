package core

// Schema knowledge is hard-coded into the generation prompt and has to be
// kept in sync by hand when the warehouse tables change.
const databaseSchema = `
## Справочники и агрегаты

### school_stats — Агрегированная статистика по школам
| Колонка | Тип | Описание |
|---------|-----|----------|
| school | String | Идентификатор/название школы |
| school_registration_date | Date | Дата регистрации школы |

### parallel_reg_stats — Статистика регистраций по параллелям
| Колонка | Тип | Описание |
|---------|-----|----------|
| school_parallel | String | Параллель (например: 5А, 6Б, 10В) |
| registration_date | Date | Дата регистрации |

## Факт-таблицы

### school_work — Учебная активность (просмотры)
| Колонка | Тип | Описание |
|---------|-----|----------|
| date | Date | Дата события |
| direction | String | Направление обучения |
| role | String | Роль: "Ученик" или "Учитель" |
| region | String | Регион РФ |
| municipality | String | Муниципалитет |
| school | String | Название школы |
| class | String | Класс |
| supplier | String | Поставщик/платформа |
| subject | String | Предмет |
| total_view | UInt32 | Количество просмотров |

### work_results_n — Результаты работ (основная таблица, ~1.4M строк)
| Колонка | Тип | Описание |
|---------|-----|----------|
| id | UInt64 | Уникальный ID |
| region | String | Регион |
| district | String | Район |
| school | String | Школа |
| class | String | Класс |
| class_teacher | String | Классный руководитель |
| student_id | String | ID ученика |
| student_full_name | String | ФИО ученика |
| role | String | Роль |
| subject | String | Предмет |
| parallel | String | Параллель (5, 6, 7...) |
| level | String | Уровень сложности |
| work_name | String | Название работы |
| work_id | String | ID работы |
| work_type | String | Тип: Самостоятельная работа, КИМ, Лабораторная работа, Интерактивная презентация |
| tasks_count | UInt32 | Количество заданий |
| result_percent | UInt32 | Процент выполнения (0-100) |
| time_spent | UInt32 | Время выполнения (секунды) |
| labor_intensity | UInt32 | Трудоёмкость |
| submission_date | String | Дата сдачи (YYYY-MM-DD) |
| start_date | Date | Дата начала |
| status | String | Статус: Отправлено, На согласовании, Подозрительно, Отказ |
| inn | String | ИНН школы |

### work_results_06 — Результаты работ (исторический срез)
Структура идентична work_results_n, используется для архивных данных.

## CRM-контур

### company_crm — Финансовые транзакции и CRM
| Колонка | Тип | Описание |
|---------|-----|----------|
| id | UInt32 | Уникальный ID |
| inn | String | ИНН клиента |
| title | String | Название компании/школы |
| name_transaction | String | Название транзакции |
| stage_transaction | String | Этап сделки: Новая, Отправить КП, ВКС, Ждем активности, Отказ, Партнеры |
| sum | Float64 | Сумма сделки |
| comment | String | Комментарий |
| uploaded_at | DateTime | Дата загрузки |
| reg_operator | String | Ответственный оператор |
`

const sqlExamples = `
## Примеры SQL-запросов

-- Просмотры за день по ролям
SELECT role, sum(total_view) as views
FROM school_work
WHERE date = today()
GROUP BY role

-- Топ-10 регионов по активности
SELECT region, sum(total_view) as views, uniqExact(school) as schools
FROM school_work
WHERE date >= today() - 7
GROUP BY region
ORDER BY views DESC
LIMIT 10

-- Средний результат по предметам
SELECT subject, avg(result_percent) as avg_score, count() as works
FROM work_results_n
WHERE toDate(submission_date) = today()
GROUP BY subject
ORDER BY works DESC

-- Сравнение недель
SELECT toStartOfWeek(date) as week, sum(total_view) as views
FROM school_work
GROUP BY week
ORDER BY week DESC
LIMIT 4

-- Воронка CRM по этапам
SELECT stage_transaction, count() as deals, sum(sum) as total_sum
FROM company_crm
GROUP BY stage_transaction
ORDER BY deals DESC
`

const sqlSystemTemplate = `Ты SQL-эксперт для аналитики образовательной платформы. База данных: ClickHouse.

%s

%s
%s
## Правила
- Только SELECT (никаких INSERT/UPDATE/DELETE/DROP)
- UNION не поддерживается
- Сегодня: %s
- Используй today() для текущей даты
- LIMIT до 20 строк
- Для подсчёта уникальных значений используй uniqExact()
- submission_date в work_results_n — это String, используй toDate(submission_date)
- Если вопрос ссылается на предыдущие ("а вчера?", "а по школам?"), опирайся на предыдущие запросы в диалоге
- Возвращай ТОЛЬКО SQL запрос, без пояснений и markdown`

const answerSystemInstruction = `Ты аналитик образовательной платформы. Тебе дают вопрос пользователя и результат SQL-запроса по нему.

Ответь кратко и понятно на русском языке. Если данных нет или запрос не вернул результатов, скажи об этом. Если вопрос ссылается на предыдущие реплики диалога, учитывай их.`

const (
	refusalMessage    = "❌ Извините, этот запрос не разрешён."
	executionErrorRu  = "❌ Ошибка выполнения запроса: "
	generationErrorRu = "❌ Не удалось обработать вопрос: "
)
