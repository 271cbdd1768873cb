package assistant

const (
	reactComponentSnippet = `function Component() {
  const [state, setState] = useState(initialValue);
  
  useEffect(() => {
    // Effect logic
  }, [dependencies]);
  
  return (
    <div>
      {/* Component JSX */}
    </div>
  );
}`

	asyncFunctionSnippet = `async function fetchData() {
  try {
    const response = await fetch(url);
    const data = await response.json();
    return data;
  } catch (error) {
    console.error('Error:', error);
    throw error;
  }
}`

	expressRouteSnippet = `app.get('/api/endpoint', async (req, res) => {
  try {
    const data = await someAsyncOperation();
    res.json(data);
  } catch (error) {
    res.status(500).json({ error: error.message });
  }
});`

	pythonFunctionSnippet = `def function_name(param1, param2):
    """
    Function description
    """
    result = param1 + param2
    return result`

	pythonClassSnippet = `class MyClass:
    def __init__(self, value):
        self.value = value
    
    def method(self):
        return self.value`

	flaskRouteSnippet = `@app.route('/api/endpoint', methods=['GET', 'POST'])
def endpoint():
    if request.method == 'POST':
        data = request.get_json()
        return jsonify(data)
    return jsonify({'message': 'Hello World'})`

	htmlBasicStructureSnippet = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Document</title>
</head>
<body>
    <h1>Hello World</h1>
</body>
</html>`

	htmlFormSnippet = `<form action="/submit" method="POST">
    <label for="name">Name:</label>
    <input type="text" id="name" name="name" required>
    
    <label for="email">Email:</label>
    <input type="email" id="email" name="email" required>
    
    <button type="submit">Submit</button>
</form>`

	cssFlexboxSnippet = `.container {
    display: flex;
    justify-content: center;
    align-items: center;
    flex-direction: column;
    gap: 1rem;
}`

	cssGridSnippet = `.grid {
    display: grid;
    grid-template-columns: repeat(auto-fit, minmax(250px, 1fr));
    gap: 1rem;
    padding: 1rem;
}`
)
